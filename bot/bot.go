// Package bot serves the resolver over a Telegram bot: platform links in a
// message are answered with the downloaded media as replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/docutag/pinfetch/models"
	"github.com/docutag/pinfetch/pipeline"
)

const (
	greeting = "Hi! I download images and videos from Pinterest.\n" +
		"Send me a pinterest.com or pin.it link and I'll reply with the media."
	processingReply = "Processing your Pinterest link..."
	noMediaReply    = "No valid image or video found."
)

// Sender is the subset of *tgbotapi.BotAPI used for replies
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Handler processes the text of one message
type Handler interface {
	Links(text string) []string
	Handle(ctx context.Context, text string, d pipeline.Delivery) (pipeline.Report, error)
}

// Bot answers chat messages. Updates are handled one at a time.
type Bot struct {
	sender  Sender
	handler Handler
	logger  *slog.Logger
}

// Connect authenticates with the Bot API. client should be the transport's
// API client so platform headers are not sent to Telegram.
func Connect(token string, client *http.Client, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	if logger != nil {
		if err := tgbotapi.SetLogger(&slogBotLogger{log: logger.With("component", "tgbotapi")}); err != nil {
			return nil, err
		}
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect bot: %w", err)
	}
	return api, nil
}

// New creates a Bot. logger may be nil.
func New(sender Sender, handler Handler, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:  sender,
		handler: handler,
		logger:  logger.With("component", "bot"),
	}
}

// Run handles updates until ctx ends or the channel closes
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("updates channel closed")
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single update. Panics are recovered and reported
// to the chat so one bad message cannot stop the loop.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic handling message", "panic", r, "stack", string(debug.Stack()))
			b.reply(msg, fmt.Sprintf("An error occurred: %v", r))
		}
	}()

	if msg.IsCommand() {
		if msg.Command() == "start" {
			b.logger.Info("bot started in chat", "chat_id", msg.Chat.ID, "chat_type", msg.Chat.Type)
			b.reply(msg, greeting)
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	links := b.handler.Links(text)
	if len(links) == 0 {
		return
	}

	log := b.logger.With("chat_id", msg.Chat.ID, "message_id", msg.MessageID)
	log.Info("links received", "count", len(links))
	b.reply(msg, processingReply)

	report, err := b.handler.Handle(ctx, text, &chatDelivery{sender: b.sender, chatID: msg.Chat.ID, replyTo: msg.MessageID, logger: log})
	switch {
	case errors.Is(err, pipeline.ErrNoMedia), errors.Is(err, pipeline.ErrNoLinks):
		log.Warn("no valid media found", "links", len(links))
		b.reply(msg, noMediaReply)
	case err != nil:
		log.Error("message handling failed", "error", err)
		b.reply(msg, fmt.Sprintf("An error occurred: %v", err))
	default:
		log.Info("media delivered", "files", len(report.Files))
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.sender.Send(out); err != nil {
		b.logger.Error("failed to send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

// chatDelivery sends each file as a reply to the originating message
type chatDelivery struct {
	sender  Sender
	chatID  int64
	replyTo int
	logger  *slog.Logger
}

func (d *chatDelivery) Name() string {
	return "telegram"
}

// Deliver sends every file, falling back to a document upload when the
// media-specific upload is rejected. All files are attempted.
func (d *chatDelivery) Deliver(ctx context.Context, files []models.MediaFile) error {
	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.send(f); err != nil {
			d.logger.Error("failed to send file", "path", f.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		d.logger.Info("file sent", "path", f.Path, "kind", f.Kind)
	}
	return errors.Join(errs...)
}

func (d *chatDelivery) send(f models.MediaFile) error {
	file := tgbotapi.FilePath(f.Path)

	var primary tgbotapi.Chattable
	switch {
	case strings.HasSuffix(f.Path, ".jpg"):
		photo := tgbotapi.NewPhoto(d.chatID, file)
		photo.ReplyToMessageID = d.replyTo
		primary = photo
	case f.Kind == models.MediaVideo:
		video := tgbotapi.NewVideo(d.chatID, file)
		video.ReplyToMessageID = d.replyTo
		video.SupportsStreaming = true
		primary = video
	}

	if primary != nil {
		_, err := d.sender.Send(primary)
		if err == nil {
			return nil
		}
		d.logger.Warn("media upload rejected, sending as document", "path", f.Path, "error", err)
	}

	doc := tgbotapi.NewDocument(d.chatID, file)
	doc.ReplyToMessageID = d.replyTo
	if _, err := d.sender.Send(doc); err != nil {
		return fmt.Errorf("failed to send %s: %w", f.Path, err)
	}
	return nil
}

// slogBotLogger routes library logs through slog
type slogBotLogger struct {
	log *slog.Logger
}

func (s *slogBotLogger) Println(v ...any) {
	s.log.Warn(fmt.Sprint(v...))
}

func (s *slogBotLogger) Printf(format string, v ...any) {
	s.log.Warn(fmt.Sprintf(format, v...))
}
