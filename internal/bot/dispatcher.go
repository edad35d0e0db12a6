package bot

import (
	"context"
	"log/slog"
	"time"

	"billfred/internal/config"
	"billfred/internal/links"
	"billfred/internal/model"
	"billfred/internal/supervisor"
	"billfred/internal/wiki"
)

// DefaultPingTimeout bounds the ping command.
const DefaultPingTimeout = 10 * time.Second

// ChatLogWriter records room messages.
type ChatLogWriter interface {
	Write(ctx context.Context, msg model.ChatMessage)
}

// LinkProcessor resolves link titles.
type LinkProcessor interface {
	Process(ctx context.Context, jobs []model.LinkJob) error
}

// Searcher answers wiki queries.
type Searcher interface {
	Answer(ctx context.Context, q wiki.Query, sender wiki.Sender, to string) error
}

// Pinger measures the round trip to a user.
type Pinger interface {
	Ping(ctx context.Context, target string) (time.Duration, error)
}

// Sender queues outbound chat messages.
type Sender interface {
	Send(msg model.OutboundMessage)
}

// Dispatcher handles the room messages of one session. Handle never blocks on
// network work: everything slow runs as a supervised task.
type Dispatcher struct {
	cfg         *config.Config
	nick        string
	version     string
	pingTimeout time.Duration

	sup     *supervisor.Supervisor
	out     Sender
	chatLog ChatLogWriter
	links   LinkProcessor
	wiki    Searcher
	pinger  Pinger
	log     *slog.Logger
}

// Handle processes one inbound room message.
func (d *Dispatcher) Handle(msg model.ChatMessage) {
	d.sup.Go("chat log write", func(ctx context.Context) error {
		d.chatLog.Write(ctx, msg)
		return nil
	})

	if msg.SenderNick == d.nick {
		return
	}

	d.scheduleLinks(msg)

	cmd, ok := ParseCommand(msg.Body, d.nick, d.cfg.Wiki.Lang)
	if !ok {
		return
	}
	d.log.Debug("command", "kind", cmd.Kind, "from", msg.SenderNick)

	switch cmd.Kind {
	case CommandPing:
		d.handlePing(msg)
	case CommandVersion:
		d.handleVersion(msg)
	case CommandHelp:
		d.handleHelp(msg)
	case CommandFeeds:
		d.handleFeeds(msg)
	case CommandWiki:
		d.handleWiki(msg, cmd.Wiki)
	case CommandJoke:
		d.handleJoke(msg, cmd.Text)
	case CommandNone:
	}
}

func (d *Dispatcher) scheduleLinks(msg model.ChatMessage) {
	if d.cfg.Links.Disabled || d.cfg.IsIgnored(msg.SenderNick) {
		return
	}
	urls := links.ExtractURLs(msg.Body, d.cfg.Links.Limit)
	if len(urls) == 0 {
		return
	}
	jobs := make([]model.LinkJob, 0, len(urls))
	for _, u := range urls {
		jobs = append(jobs, model.LinkJob{Target: msg.Room, URL: u})
	}
	d.sup.Go("link titles", func(ctx context.Context) error {
		return d.links.Process(ctx, jobs)
	})
}

func (d *Dispatcher) reply(msg model.ChatMessage, body string) {
	d.out.Send(model.OutboundMessage{To: msg.Room, Body: body})
}
