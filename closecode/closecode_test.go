package closecode

import "testing"

func TestStringKnownCodes(t *testing.T) {
	cases := map[Code]string{
		ClosingNormal:            "CLOSING_NORMAL",
		SubprotocolError:         "SUBPROTOCOL_ERROR",
		PathFull:                 "PATH_FULL",
		ProtocolError:            "PROTOCOL_ERROR",
		Handover:                 "HANDOVER",
		NoSharedTask:             "NO_SHARED_TASK",
		InitiatorCouldNotDecrypt: "INITIATOR_COULD_NOT_DECRYPT",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", code, got, want)
		}
	}
}

func TestStringUnknown(t *testing.T) {
	if got := Code(9999).String(); got != "UNKNOWN" {
		t.Errorf("String() = %q, want UNKNOWN", got)
	}
}

func TestIsHandover(t *testing.T) {
	if !Handover.IsHandover() {
		t.Error("Handover.IsHandover() = false")
	}
	if ClosingNormal.IsHandover() {
		t.Error("ClosingNormal.IsHandover() = true")
	}
}
