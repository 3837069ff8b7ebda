// Package bot implements the chat query and labeling service on top of the
// face index.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/logging"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/telegram"
)

// DefaultLinkTTL is the lifetime of read links sent to the chat.
const DefaultLinkTTL = 5 * time.Minute

// Messenger sends replies to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, replyTo int64) error
	SendMediaGroup(ctx context.Context, chatID int64, photoURLs []string, replyTo int64) error
}

// Signer issues read links for stored objects.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Options configures a Service.
type Options struct {
	Language string
	LinkTTL  time.Duration
}

// Service answers chat updates. It keeps no state between updates.
type Service struct {
	index   database.FaceWriter
	crops   Signer
	sources Signer
	chat    Messenger
	texts   *Messages
	linkTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the service. crops signs face crops, sources signs original images.
func New(index database.FaceWriter, crops, sources Signer, chat Messenger, m *metrics.Metrics, opts Options) (*Service, error) {
	texts, err := LoadMessages(opts.Language)
	if err != nil {
		return nil, err
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = DefaultLinkTTL
	}
	return &Service{
		index:   index,
		crops:   crops,
		sources: sources,
		chat:    chat,
		texts:   texts,
		linkTTL: opts.LinkTTL,
		metrics: m,
		logger:  logging.Component("bot"),
	}, nil
}

// parseCommand returns the lower-cased command of the first token, without
// any @botname suffix, and the remaining text.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// Handle interprets one update and sends exactly one reply (or one series of
// media groups). Index and storage failures become a generic reply; only a
// failure to reach the chat transport is returned.
func (s *Service) Handle(ctx context.Context, update telegram.Update) error {
	msg := update.Message
	if msg == nil {
		return nil
	}
	ctx = logging.EnsureCorrelationID(ctx)

	command, arg := parseCommand(msg.Text)
	switch {
	case command == "/start":
		s.count("start")
		return s.reply(ctx, msg, s.texts.Start)
	case command == "/getface":
		s.count("getface")
		return s.getFace(ctx, msg)
	case command == "/find":
		s.count("find")
		return s.find(ctx, msg, arg)
	case msg.ReplyToMessage.HasPhoto():
		s.count("label")
		return s.label(ctx, msg)
	default:
		s.count("unknown")
		return s.reply(ctx, msg, s.texts.Error)
	}
}

func (s *Service) count(command string) {
	s.metrics.BotCommands.WithLabelValues(command).Inc()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *Service) reply(ctx context.Context, msg *telegram.Message, text string) error {
	if err := s.chat.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (s *Service) getFace(ctx context.Context, msg *telegram.Message) error {
	keys, err := s.index.ListUnlabeled(ctx, 1)
	if err != nil {
		s.log(ctx).Error("failed to list unlabeled faces", "error", err)
		return s.reply(ctx, msg, s.texts.Unavailable)
	}
	if len(keys) == 0 {
		return s.reply(ctx, msg, s.texts.AllNamed)
	}

	faceKey := keys[0]
	link, err := s.crops.SignedURL(ctx, faceKey, s.linkTTL)
	if err != nil {
		s.log(ctx).Error("failed to sign face link", "face_key", faceKey, "error", err)
		return s.reply(ctx, msg, s.texts.Unavailable)
	}

	if err := s.chat.SendPhoto(ctx, msg.Chat.ID, link, faceKey, msg.MessageID); err != nil {
		return fmt.Errorf("send face: %w", err)
	}
	return nil
}

func (s *Service) find(ctx context.Context, msg *telegram.Message, name string) error {
	label := faces.NormalizeLabel(name)
	if label == "" {
		return s.reply(ctx, msg, s.texts.EnterName)
	}

	originals, err := s.index.FindByLabel(ctx, label)
	if err != nil {
		s.log(ctx).Error("failed to find faces by label", "error", err)
		return s.reply(ctx, msg, s.texts.Unavailable)
	}
	if len(originals) == 0 {
		return s.reply(ctx, msg, withName(s.texts.NotFound, label))
	}

	links := make([]string, 0, len(originals))
	for _, key := range originals {
		link, err := s.sources.SignedURL(ctx, key, s.linkTTL)
		if err != nil {
			s.log(ctx).Error("failed to sign source link", "original_key", key, "error", err)
			return s.reply(ctx, msg, s.texts.Unavailable)
		}
		links = append(links, link)
	}

	for group := range slices.Chunk(links, telegram.MaxMediaGroupSize) {
		if err := s.chat.SendMediaGroup(ctx, msg.Chat.ID, group, msg.MessageID); err != nil {
			return fmt.Errorf("send media group: %w", err)
		}
	}
	return nil
}

func (s *Service) label(ctx context.Context, msg *telegram.Message) error {
	faceKey := strings.TrimSpace(msg.ReplyToMessage.Caption)
	if !faces.ValidKey(faceKey) {
		return s.reply(ctx, msg, s.texts.CannotLabel)
	}

	label := faces.NormalizeLabel(msg.Text)
	if label == "" {
		return s.reply(ctx, msg, s.texts.EnterName)
	}

	err := s.index.SetLabel(ctx, faceKey, label)
	switch {
	case errors.Is(err, faces.ErrNotFound):
		return s.reply(ctx, msg, s.texts.FaceNotFound)
	case err != nil:
		s.log(ctx).Error("failed to set label", "face_key", faceKey, "error", err)
		return s.reply(ctx, msg, s.texts.Unavailable)
	}

	s.log(ctx).Info("face labeled", "face_key", faceKey)
	return s.reply(ctx, msg, withName(s.texts.Labeled, label))
}
