package server

import (
	"context"
	"log/slog"

	"github.com/meetcap/meetcap/internal/protocol"
)

// WSReply is the envelope for a command response pushed back over the
// WebSocket. Type is the request type with a "_result" suffix so clients can
// correlate without request IDs.
type WSReply struct {
	Type string `json:"type"`
	protocol.Response
}

// WSStatePush carries a state snapshot to the client.
type WSStatePush struct {
	Type  string                  `json:"type"`
	State protocol.RecordingState `json:"state"`
}

// Dispatcher routes a protocol message and returns its response.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *protocol.Message) protocol.Response
}

// CommandHandler forwards WebSocket commands to the coordinator.
type CommandHandler struct {
	dispatcher Dispatcher
}

// NewCommandHandler returns a handler backed by the given dispatcher.
func NewCommandHandler(d Dispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: d}
}

// Handle processes one command and queues the reply. onStateChange is
// signaled after commands that may have mutated recording state.
func (h *CommandHandler) Handle(ctx context.Context, msg protocol.Message, send chan<- any, onStateChange func()) {
	resp := h.dispatcher.Dispatch(ctx, &msg)
	trySend(send, msg.Type, WSReply{Type: msg.Type + "_result", Response: resp})

	switch msg.Type {
	case protocol.MsgStartRecording, protocol.MsgPauseRecording,
		protocol.MsgResumeRecording, protocol.MsgStopRecording,
		protocol.MsgDeleteRecording:
		onStateChange()
	}
}

// trySend attempts to send a message, logging a warning if the channel is full.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full or closed", "type", cmdType)
	}
}
