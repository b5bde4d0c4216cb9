// Package task declares the Task interface the signaling core negotiates
// and hands control to once the peer handshake completes (spec §6). A task
// implements an application-level sub-protocol (e.g. WebRTC offer/answer
// exchange) layered on top of the secure channel SaltyRTC establishes; this
// module ships the interface only, grounded in the same
// handler-registered-on-a-core pattern the teacher uses for its xchg peer
// callbacks (xchg/peer.go's onEnter/onExit hooks), generalized to the
// richer lifecycle spec §6 names.
package task

// Task is implemented by every application task negotiated during the
// Auth/Auth handshake exchange. The signaling core owns exactly one Task
// instance per connection once negotiation succeeds.
type Task interface {
	// Name returns the task's protocol name, compared against the peer's
	// advertised task list during negotiation (spec §4.6).
	Name() string

	// SupportedMessageTypes lists the "type" values this task accepts in
	// post-handshake application messages. The core uses this purely for
	// validation; dispatch of the message body is left to the task.
	SupportedMessageTypes() []string

	// Data returns this task's contribution to the data field of the
	// outgoing Auth message, keyed implicitly by Name().
	Data() map[string]interface{}

	// Init is called once, before the Auth handshake completes, with the
	// counterpart's advertised data for this task (may be nil if the
	// counterpart sent no data under this task's name).
	Init(peerData map[string]interface{}) error

	// OnPeerHandshakeDone is called once the peer handshake is fully
	// complete and the task may begin sending its own messages through
	// SendSignalingMessage.
	OnPeerHandshakeDone()

	// OnTaskMessage delivers one post-handshake application message whose
	// type matched SupportedMessageTypes.
	OnTaskMessage(msg map[string]interface{})

	// Close notifies the task that signaling has closed or is about to
	// hand over to a different channel, with the close code that
	// triggered it.
	Close(reason int)
}

// SignalingMessageSender is the interface *signaling.Signaling implements
// for emitting application messages over the same encrypted channel
// signaling uses, without the task depending on the signaling package
// directly. The core does not hand it to the task: Init receives only the
// peer's data, and no other Task method carries a sender.
type SignalingMessageSender interface {
	// SendSignalingMessage encrypts and sends msg to the connected peer.
	SendSignalingMessage(msg map[string]interface{}) error
}
