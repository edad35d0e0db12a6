package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"billfred/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	To   string
	Body string
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
	ch   chan sentMessage
}

func newMockSender() *mockSender {
	return &mockSender{ch: make(chan sentMessage, 100), fail: make(map[string]bool)}
}

func (m *mockSender) Send(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[body] {
		return errors.New("send failed")
	}
	msg := sentMessage{To: to, Body: body}
	m.sent = append(m.sent, msg)
	m.ch <- msg
	return nil
}

func (m *mockSender) wait(t *testing.T, n int) []sentMessage {
	t.Helper()
	var got []sentMessage
	for range n {
		select {
		case msg := <-m.ch:
			got = append(got, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", len(got), n)
		}
	}
	return got
}

func TestOutboxDeliversInOrder(t *testing.T) {
	sender := newMockSender()
	sender.fail["broken"] = true
	out := NewOutbox(sender, "-100", discardLogger())
	out.Start(context.Background())
	defer out.Stop()

	out.Send(model.OutboundMessage{Body: "first"})
	out.Send(model.OutboundMessage{To: "-200", Body: "second"})
	out.Send(model.OutboundMessage{Body: "broken"})
	out.Send(model.OutboundMessage{Body: "third"})

	want := []sentMessage{
		{To: "-100", Body: "first"},
		{To: "-200", Body: "second"},
		{To: "-100", Body: "third"},
	}
	if diff := cmp.Diff(want, sender.wait(t, 3)); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestOutboxSplitsLongMessages(t *testing.T) {
	sender := newMockSender()
	out := NewOutbox(sender, "-100", discardLogger())
	out.limit = 10
	out.Start(context.Background())
	defer out.Stop()

	out.Send(model.OutboundMessage{Body: "aaaa\nbbbb\ncccc"})

	want := []sentMessage{
		{To: "-100", Body: "aaaa\nbbbb"},
		{To: "-100", Body: "cccc"},
	}
	if diff := cmp.Diff(want, sender.wait(t, 2)); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestOutboxDropsAfterStop(t *testing.T) {
	sender := newMockSender()
	out := NewOutbox(sender, "-100", discardLogger())
	out.Start(context.Background())
	out.Stop()
	out.Stop()

	out.Send(model.OutboundMessage{Body: strings.Repeat("x", 5)})

	select {
	case msg := <-sender.ch:
		t.Errorf("unexpected message after stop: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
