package main

import "github.com/ipoluianov/gomisc/logger"

// loggingTask is a minimal task.Task that advertises no sub-protocol data
// of its own and simply logs post-handshake traffic. The wire protocol a
// real application task speaks (e.g. WebRTC offer/answer exchange) is out
// of scope here; this exists to exercise signaling.Signaling's task
// negotiation path end to end.
type loggingTask struct{}

func (t *loggingTask) Name() string                    { return "application" }
func (t *loggingTask) SupportedMessageTypes() []string { return []string{"application"} }
func (t *loggingTask) Data() map[string]interface{}    { return map[string]interface{}{} }

func (t *loggingTask) Init(peerData map[string]interface{}) error {
	logger.Println("loggingTask.Init", "peer data:", peerData)
	return nil
}

func (t *loggingTask) OnPeerHandshakeDone() {
	logger.Println("loggingTask", "peer handshake done")
}

func (t *loggingTask) OnTaskMessage(msg map[string]interface{}) {
	logger.Println("loggingTask", "message:", msg)
}

func (t *loggingTask) Close(reason int) {
	logger.Println("loggingTask", "closed, code:", reason)
}
