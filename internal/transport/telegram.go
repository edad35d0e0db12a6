package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"billfred/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type newAPIFunc func(token string) (telegramAPI, error)

func newBotAPI(token string) (telegramAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return api, nil
}

// SetLibraryLogger routes the Bot API library's own messages to log.
func SetLibraryLogger(log *slog.Logger) {
	_ = tgbotapi.SetLogger(slog.NewLogLogger(log.Handler(), slog.LevelWarn))
}

// Telegram is a Session over the Telegram Bot API. The room is a group chat
// ID; only messages from that chat are delivered.
type Telegram struct {
	token  string
	newAPI newAPIFunc
	log    *slog.Logger
	// now stamps incoming messages. Telegram dates have one-second
	// resolution, too coarse to order a busy chat log.
	now    func() time.Time

	mu   sync.Mutex
	api  telegramAPI
	self tgbotapi.User
	room int64

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTelegram creates a session that connects with token when Run is called.
func NewTelegram(token string, log *slog.Logger) *Telegram {
	return newTelegram(token, newBotAPI, log)
}

func newTelegram(token string, newAPI newAPIFunc, log *slog.Logger) *Telegram {
	return &Telegram{
		token:  token,
		newAPI: newAPI,
		log:    log,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

// Run connects and long-polls for updates until ctx is cancelled, Disconnect
// is called or the update stream closes.
func (t *Telegram) Run(ctx context.Context, events chan<- Event) error {
	api, err := t.newAPI(t.token)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	me, err := api.GetMe()
	if err != nil {
		return fmt.Errorf("get me: %w", err)
	}

	t.mu.Lock()
	t.api = api
	t.self = me
	t.mu.Unlock()

	t.log.Info("connected to telegram", "username", me.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	defer Emit(context.WithoutCancel(ctx), events, Event{Kind: SessionEnd})
	if !Emit(ctx, events, Event{Kind: SessionStart}) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.stop:
			return nil
		case update, ok := <-updates:
			if !ok {
				return ErrDisconnect
			}
			msg, ok := t.roomMessage(update)
			if !ok {
				continue
			}
			if !Emit(ctx, events, Event{Kind: RoomMessage, Message: msg}) {
				return nil
			}
		}
	}
}

func (t *Telegram) roomMessage(update tgbotapi.Update) (model.ChatMessage, bool) {
	m := update.Message
	if m == nil || m.Chat == nil {
		return model.ChatMessage{}, false
	}

	t.mu.Lock()
	room := t.room
	t.mu.Unlock()
	if room == 0 || m.Chat.ID != room {
		return model.ChatMessage{}, false
	}

	body := m.Text
	if body == "" {
		body = m.Caption
	}
	msg := model.ChatMessage{
		Timestamp: t.now(),
		Room:      strconv.FormatInt(m.Chat.ID, 10),
		Body:      body,
	}
	switch {
	case m.From != nil:
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
		msg.SenderNick = m.From.String()
	case m.SenderChat != nil:
		msg.SenderID = strconv.FormatInt(m.SenderChat.ID, 10)
		msg.SenderNick = m.SenderChat.Title
	}
	return msg, true
}

// Nick returns the bot's username.
func (t *Telegram) Nick() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.self.UserName
}

// JoinRoom checks that the bot is a member of the chat and starts delivering
// its messages. Telegram has no per-room nicknames, so nick is only logged.
func (t *Telegram) JoinRoom(_ context.Context, room, nick string) error {
	chatID, err := strconv.ParseInt(room, 10, 64)
	if err != nil {
		return fmt.Errorf("parse room %q: %w", room, err)
	}

	api, self, err := t.conn()
	if err != nil {
		return err
	}

	chat, err := api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return fmt.Errorf("get chat %d: %w", chatID, err)
	}
	member, err := api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: self.ID},
	})
	if err != nil {
		return fmt.Errorf("get chat member: %w", err)
	}
	if member.HasLeft() || member.WasKicked() {
		return fmt.Errorf("chat %d (%s): %w", chatID, member.Status, ErrNotMember)
	}

	t.mu.Lock()
	t.room = chatID
	t.mu.Unlock()

	t.log.Info("joined room", "room", chatID, "title", chat.Title, "nick", nick)
	return nil
}

// Send posts body to the chat identified by to.
func (t *Telegram) Send(_ context.Context, to, body string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", to, err)
	}
	api, _, err := t.conn()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, body)
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Ping measures a getMe round trip. Bots cannot ping users, so target is
// only logged.
func (t *Telegram) Ping(ctx context.Context, target string) (time.Duration, error) {
	api, _, err := t.conn()
	if err != nil {
		return 0, err
	}

	t.log.Debug("ping", "target", target)
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := api.GetMe()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("ping: %w", err)
		}
		return time.Since(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Disconnect makes Run return. It is safe to call more than once.
func (t *Telegram) Disconnect() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Telegram) conn() (telegramAPI, tgbotapi.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.api == nil {
		return nil, tgbotapi.User{}, ErrNotConnected
	}
	return t.api, t.self, nil
}
