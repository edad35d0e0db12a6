// Package bot runs the chat sessions: it dispatches room messages to the
// workers, owns the outbound queue and reconnects after a session ends.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"billfred/internal/config"
	"billfred/internal/fetcher"
	"billfred/internal/links"
	"billfred/internal/model"
	"billfred/internal/scheduler"
	"billfred/internal/storage"
	"billfred/internal/supervisor"
	"billfred/internal/transport"
	"billfred/internal/wiki"
)

const shutdownTimeout = 10 * time.Second

// Options holds the dependencies of a Bot.
type Options struct {
	Config  *config.Config
	Version string
	// NewSession returns a fresh transport session for every connection
	// attempt.
	NewSession func() transport.Session
	// OpenChatLog opens the chat log store. Nil means storage.NewSQLite.
	OpenChatLog func(path string, log *slog.Logger) (storage.ChatLog, error)
	HTTPClient  *http.Client
}

// Bot keeps one chat session alive at a time.
type Bot struct {
	cfg         *config.Config
	version     string
	newSession  func() transport.Session
	openChatLog func(path string, log *slog.Logger) (storage.ChatLog, error)
	client      *http.Client
	sched       *scheduler.Scheduler
	pingTimeout time.Duration
	log         *slog.Logger
}

// New creates a Bot. The feed poller is created here, so feed watermarks
// survive reconnects.
func New(opts Options, log *slog.Logger) *Bot {
	openChatLog := opts.OpenChatLog
	if openChatLog == nil {
		openChatLog = func(path string, log *slog.Logger) (storage.ChatLog, error) {
			return storage.NewSQLite(path, log)
		}
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	cfg := opts.Config
	poller := fetcher.NewPoller(fetcher.New(client), log)
	return &Bot{
		cfg:         cfg,
		version:     opts.Version,
		newSession:  opts.NewSession,
		openChatLog: openChatLog,
		client:      client,
		sched:       scheduler.New(poller, cfg.FeedWorkers, cfg.FeedStartDelay, cfg.FeedStagger, log),
		pingTimeout: DefaultPingTimeout,
		log:         log,
	}
}

// Run runs sessions until ctx is cancelled. After a session ends it waits
// for the reconnect delay and starts a new one, unless reconnecting is
// disabled, in which case the session's error is returned.
func (b *Bot) Run(ctx context.Context) error {
	for {
		err := b.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.log.Error("session ended", "error", err)
		} else {
			b.log.Info("session ended")
		}
		if !b.cfg.ReconnectEnabled() {
			return err
		}

		b.log.Info("reconnecting", "delay", b.cfg.ReconnectDelay)
		if err := supervisor.Sleep(ctx, b.cfg.ReconnectDelay); err != nil {
			return nil
		}
	}
}

// runSession drives one session from connect to disconnect. Events are
// consumed until the transport's Run returns.
func (b *Bot) runSession(ctx context.Context) error {
	conn := b.newSession()
	events := make(chan transport.Event)
	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx, events) }()

	var (
		s       *session
		joinErr error
	)
	defer func() {
		if s != nil {
			s.close()
		}
	}()

	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case transport.SessionStart:
				if s != nil || joinErr != nil {
					continue
				}
				s, joinErr = b.startSession(ctx, conn)
				if joinErr != nil {
					conn.Disconnect()
				}
			case transport.RoomMessage:
				if s != nil {
					s.dispatcher.Handle(ev.Message)
				}
			case transport.SessionEnd:
				if s != nil {
					s.close()
					s = nil
				}
				conn.Disconnect()
			}
		case err := <-runErr:
			if joinErr != nil {
				return joinErr
			}
			if err != nil {
				return fmt.Errorf("session: %w", err)
			}
			return nil
		}
	}
}

// session holds what lives exactly as long as one connection.
type session struct {
	sup        *supervisor.Supervisor
	outbox     *Outbox
	resolver   *links.Resolver
	wiki       *wiki.Client
	chatLog    storage.ChatLog
	dispatcher *Dispatcher
	log        *slog.Logger
}

func (b *Bot) startSession(ctx context.Context, conn transport.Session) (*session, error) {
	nick := b.cfg.Nick
	if nick == "" {
		nick = conn.Nick()
	}
	log := b.log.With("room", b.cfg.Room)
	log.Info("session started", "nick", nick)

	chatLog, err := b.openChatLog(b.cfg.DatabasePath, log)
	if err != nil {
		log.Error("open chat log, messages will not be recorded", "path", b.cfg.DatabasePath, "error", err)
		chatLog = nopChatLog{}
	}

	out := NewOutbox(conn, b.cfg.Room, log)
	s := &session{
		sup:      supervisor.New(ctx, log),
		outbox:   out,
		resolver: links.New(b.client, out, b.cfg.Links.Interval, log),
		wiki:     wiki.New(b.client, b.cfg.Wiki.BaseURL, b.cfg.Wiki.Limit, b.cfg.Wiki.Interval, log),
		chatLog:  chatLog,
		log:      log,
	}
	s.dispatcher = &Dispatcher{
		cfg:         b.cfg,
		nick:        nick,
		version:     b.version,
		pingTimeout: b.pingTimeout,
		sup:         s.sup,
		out:         out,
		chatLog:     chatLog,
		links:       s.resolver,
		wiki:        s.wiki,
		pinger:      conn,
		log:         log,
	}
	out.Start(ctx)

	if err := conn.JoinRoom(ctx, b.cfg.Room, nick); err != nil {
		s.close()
		return nil, fmt.Errorf("join room %s: %w", b.cfg.Room, err)
	}
	log.Info("joined room")

	n := b.sched.Start(s.sup, out, b.cfg.FeedTasks())
	log.Info("feed monitoring started", "feeds", n)
	return s, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.sup.Shutdown(ctx); err != nil {
		s.log.Warn("tasks did not stop in time", "error", err)
	}
	s.resolver.Close()
	s.wiki.Close()
	if err := s.chatLog.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		s.log.Error("close chat log", "error", err)
	}
	s.outbox.Stop()
	s.log.Info("session closed")
}

type nopChatLog struct{}

func (nopChatLog) Write(context.Context, model.ChatMessage) {}

func (nopChatLog) Recent(context.Context, int) ([]model.LogRecord, error) { return nil, nil }

func (nopChatLog) SchemaVersions(context.Context) ([]model.SchemaVersion, error) { return nil, nil }

func (nopChatLog) Close() error { return nil }
