package bot

import (
	"context"
	"log/slog"
	"sync"

	"billfred/internal/model"
)

// MessageSender is the transport side of the Outbox.
type MessageSender interface {
	Send(ctx context.Context, to, body string) error
}

// Outbox is the single outbound path of a session. Any goroutine may queue
// messages with Send; one goroutine delivers them in order.
type Outbox struct {
	sender MessageSender
	room   string
	limit  int
	log    *slog.Logger

	mu      sync.Mutex
	queue   []model.OutboundMessage
	stopped bool

	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates an Outbox that delivers through sender. Messages with an
// empty To go to room.
func NewOutbox(sender MessageSender, room string, log *slog.Logger) *Outbox {
	return &Outbox{
		sender: sender,
		room:   room,
		limit:  MaxMessageUnits,
		log:    log,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine. It must be called once.
func (o *Outbox) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	go o.loop(ctx)
}

// Send queues msg for delivery. Messages queued after Stop are dropped.
func (o *Outbox) Send(msg model.OutboundMessage) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.log.Debug("outbox stopped, message dropped", "to", msg.To)
		return
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Stop ends delivery and waits for the goroutine to exit. Undelivered
// messages are discarded.
func (o *Outbox) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
}

func (o *Outbox) loop(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			if n := o.pending(); n > 0 {
				o.log.Info("outbox stopped with undelivered messages", "count", n)
			}
			return
		case <-o.notify:
		}

		for {
			msg, ok := o.next()
			if !ok {
				break
			}
			o.deliver(ctx, msg)
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (o *Outbox) next() (model.OutboundMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return model.OutboundMessage{}, false
	}
	msg := o.queue[0]
	o.queue = o.queue[1:]
	return msg, true
}

func (o *Outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Outbox) deliver(ctx context.Context, msg model.OutboundMessage) {
	to := msg.To
	if to == "" {
		to = o.room
	}
	for _, part := range SplitMessage(msg.Body, o.limit) {
		if err := o.sender.Send(ctx, to, part); err != nil {
			o.log.Error("send message", "to", to, "error", err)
			return
		}
	}
}
