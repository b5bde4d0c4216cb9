package signaling

import (
	"github.com/ipoluianov/gomisc/logger"

	"github.com/saltyrtc/saltyrtc-go/closecode"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
)

// handleTaskFrame implements spec §4.7: once in TASK state, only a small
// set of server pushes remain meaningful, and peer traffic is forwarded to
// the negotiated task rather than interpreted by signaling itself.
func (s *Signaling) handleTaskFrame(frame []byte) error {
	n, body, err := splitFrame(frame)
	if err != nil {
		return err
	}
	source := peer.Address(n.Source)
	if source == peer.AddressServer {
		return s.handleServerPushDuringTask(n, body)
	}

	rec, activeAddr, ok := s.activePeerRecordLocked()
	if !ok || source != activeAddr {
		return &ProtocolError{Reason: "task-phase frame from unexpected source"}
	}
	if err := s.checkIncomingNonce(n, rec, activeAddr); err != nil {
		return err
	}
	plain, err := s.openPeerSessionLocked(rec, n, body)
	if err != nil {
		return err
	}
	raw, err := message.DecodeRaw(plain)
	if err != nil {
		return err
	}
	if !s.taskAccepts(raw.Type()) {
		return &ProtocolError{Reason: "message type not supported by negotiated task: " + raw.Type()}
	}
	s.selectedTask.OnTaskMessage(raw)
	s.events.fireData(plain)
	return nil
}

func (s *Signaling) taskAccepts(msgType string) bool {
	if s.selectedTask == nil {
		return false
	}
	for _, t := range s.selectedTask.SupportedMessageTypes() {
		if t == msgType {
			return true
		}
	}
	return false
}

func (s *Signaling) handleServerPushDuringTask(n nonce.Nonce, body []byte) error {
	if err := s.checkIncomingNonce(n, &s.server, peer.AddressServer); err != nil {
		return err
	}
	plain, err := s.openServerEnvelope(n, body)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case *message.SendError:
		s.events.fireConnectionLost(0)
		return &ProtocolError{Reason: "send-error during task phase"}
	case *message.Disconnected:
		s.events.fireConnectionLost(m.ID)
		return nil
	case *message.NewInitiator, *message.NewResponder:
		s.resetConnectionLocked(closecode.DroppedByInitiator, "peer set changed during task phase")
		return nil
	default:
		logger.Println("signaling: ignoring server push during task phase:", msg.Type())
		return nil
	}
}
