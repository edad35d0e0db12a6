// Package transport connects the bot to a chat network.
package transport

import (
	"context"
	"errors"
	"time"

	"billfred/internal/model"
)

// EventKind tells what happened on a session.
type EventKind int

// Session events, in the order a session produces them.
const (
	SessionStart EventKind = iota + 1
	RoomMessage
	SessionEnd
)

func (k EventKind) String() string {
	switch k {
	case SessionStart:
		return "session_start"
	case RoomMessage:
		return "room_message"
	case SessionEnd:
		return "session_end"
	}
	return "unknown"
}

// Event is delivered by Session.Run. Message is set for RoomMessage only.
type Event struct {
	Kind    EventKind
	Message model.ChatMessage
}

// Errors shared by transport implementations.
var (
	ErrNotConnected = errors.New("not connected")
	ErrNotMember    = errors.New("not a member of the room")
	ErrDisconnect   = errors.New("connection lost")
)

// Session is one connection to the chat network. A Session is used once:
// Run connects, emits SessionStart, then RoomMessage events for the joined
// room, and SessionEnd right before it returns. The caller must keep
// receiving events until Run returns.
type Session interface {
	Run(ctx context.Context, events chan<- Event) error
	// Nick is the account's own name once connected.
	Nick() string
	JoinRoom(ctx context.Context, room, nick string) error
	Send(ctx context.Context, to, body string) error
	// Ping measures a round trip to target.
	Ping(ctx context.Context, target string) (time.Duration, error)
	Disconnect()
}

// Emit delivers ev unless ctx is done first.
func Emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
