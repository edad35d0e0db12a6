package bot

import (
	"context"
	"fmt"

	"billfred/internal/joke"
	"billfred/internal/model"
	"billfred/internal/wiki"
)

func (d *Dispatcher) handlePing(msg model.ChatMessage) {
	d.log.Debug("got ping", "nick", msg.SenderNick, "id", msg.SenderID)
	d.sup.Go("ping "+msg.SenderNick, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.pingTimeout)
		defer cancel()

		rtt, err := d.pinger.Ping(ctx, msg.SenderID)
		if err != nil {
			d.log.Info("ping failed", "nick", msg.SenderNick, "id", msg.SenderID, "error", err)
			return nil
		}
		d.reply(msg, fmt.Sprintf("%s, pong is: %.3f", msg.SenderNick, rtt.Seconds()))
		return nil
	})
}

func (d *Dispatcher) handleVersion(msg model.ChatMessage) {
	d.reply(msg, fmt.Sprintf("Bot version: %s.", d.version))
}

func (d *Dispatcher) handleHelp(msg model.ChatMessage) {
	d.reply(msg, FormatHelp(d.nick))
}

func (d *Dispatcher) handleFeeds(msg model.ChatMessage) {
	d.reply(msg, FormatFeedList(d.cfg.FeedTasks()))
}

func (d *Dispatcher) handleWiki(msg model.ChatMessage, q wiki.Query) {
	if q.Text == "" {
		return
	}
	d.sup.Go("wiki search", func(ctx context.Context) error {
		return d.wiki.Answer(ctx, q, d.out, msg.Room)
	})
}

func (d *Dispatcher) handleJoke(msg model.ChatMessage, text string) {
	d.reply(msg, joke.Reply(text))
}
