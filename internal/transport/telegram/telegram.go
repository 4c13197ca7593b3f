// Package telegram implements the messaging transport over the Telegram Bot
// API.
//
// A bot-token session can describe chats and send messages but cannot
// enumerate dialogs, so discovery-mode campaigns degrade to zero targets when
// every sender in the pool is bot-backed. Provider errors are normalized into
// the typed variants of the transport package; callers never see Bot API
// descriptions.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"adcast/internal/campaign"
	"adcast/internal/transport"
	"adcast/pkg/logx"
)

type Config struct {
	Token string
	// Timeout bounds one API round-trip. Default 30s.
	Timeout time.Duration
	// RatePerSec caps API calls for this session. Default 25, just under the
	// provider's global bot limit.
	RatePerSec int
}

// Client is one bot-token session implementing transport.Transport.
type Client struct {
	cfg Config
	log logx.Logger

	limiter *rate.Limiter

	mu  sync.Mutex
	bot *tele.Bot
}

var _ transport.Transport = (*Client)(nil)

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Connect builds the session and validates the token against the provider
// (NewBot performs a getMe round-trip).
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  c.cfg.Token,
		Client: &http.Client{Timeout: c.cfg.Timeout},
	})
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	c.bot = b
	c.log.Debug("telegram session up", logx.String("bot", b.Me.Username))
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot != nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bot = nil
	return nil
}

func (c *Client) session() (*tele.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot == nil {
		return nil, transport.ErrNotConnected
	}
	return c.bot, nil
}

func (c *Client) DescribeChat(ctx context.Context, id int64) (transport.ChatInfo, error) {
	b, err := c.session()
	if err != nil {
		return transport.ChatInfo{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return transport.ChatInfo{}, err
	}
	chat, err := b.ChatByID(id)
	if err != nil {
		return transport.ChatInfo{}, mapError(err)
	}
	return transport.ChatInfo{
		ID:    chat.ID,
		Type:  mapChatType(chat.Type),
		Title: chatTitle(chat),
	}, nil
}

// EnumerateChats is unavailable over the Bot API: bots have no dialog list.
func (c *Client) EnumerateChats(ctx context.Context, limit int) ([]transport.ChatInfo, error) {
	return nil, transport.ErrNotSupported
}

func (c *Client) Send(ctx context.Context, msg campaign.Message, chatID int64) error {
	b, err := c.session()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if rm := buttonMarkup(msg.Buttons); rm != nil {
		opts.ReplyMarkup = rm
	}

	_, err = b.Send(tele.ChatID(chatID), sendable(msg), opts)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// sendable picks the concrete payload telebot should deliver. Media carries
// the text as its caption, matching how campaigns are composed.
func sendable(msg campaign.Message) any {
	if msg.Media == nil {
		return msg.Text
	}
	switch msg.Media.Kind {
	case campaign.MediaPhoto:
		return &tele.Photo{File: tele.FromDisk(msg.Media.Path), Caption: msg.Text}
	case campaign.MediaDocument:
		return &tele.Document{File: tele.FromDisk(msg.Media.Path), Caption: msg.Text}
	case campaign.MediaVideo:
		return &tele.Video{File: tele.FromDisk(msg.Media.Path), Caption: msg.Text}
	default:
		return msg.Text
	}
}

// buttonMarkup converts URL button rows; buttons without a URL are dropped.
func buttonMarkup(rows [][]campaign.Button) *tele.ReplyMarkup {
	var keyboard [][]tele.InlineButton
	for _, row := range rows {
		var btns []tele.InlineButton
		for _, btn := range row {
			if btn.URL == "" {
				continue
			}
			btns = append(btns, tele.InlineButton{Text: btn.Text, URL: btn.URL})
		}
		if len(btns) > 0 {
			keyboard = append(keyboard, btns)
		}
	}
	if len(keyboard) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

func mapChatType(t tele.ChatType) campaign.ChatType {
	switch t {
	case tele.ChatPrivate:
		return campaign.ChatPrivate
	case tele.ChatGroup:
		return campaign.ChatGroup
	case tele.ChatSuperGroup:
		return campaign.ChatSupergroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return campaign.ChatChannel
	default:
		return campaign.ChatType(t)
	}
}

func chatTitle(chat *tele.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	name := chat.FirstName
	if chat.LastName != "" {
		name += " " + chat.LastName
	}
	return name
}

// mapError normalizes telebot errors into the transport taxonomy. Unmatched
// provider errors pass through wrapped so the classifier buckets them as
// unknown while operators still see the original description.
func mapError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.FloodWaitError{Wait: time.Duration(flood.RetryAfter) * time.Second}
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) {
		return &transport.FloodWaitError{Wait: time.Duration(floodPtr.RetryAfter) * time.Second}
	}
	switch {
	case errors.Is(err, tele.ErrBlockedByUser):
		return fmt.Errorf("%w: %s", transport.ErrBlocked, err)
	case errors.Is(err, tele.ErrNotStartedByUser):
		return fmt.Errorf("%w: %s", transport.ErrPeerInitRequired, err)
	case errors.Is(err, tele.ErrUserIsDeactivated):
		return fmt.Errorf("%w: %s", transport.ErrAccountDeactivated, err)
	case errors.Is(err, tele.ErrChatNotFound):
		return fmt.Errorf("%w: %s", transport.ErrPeerInvalid, err)
	case errors.Is(err, tele.ErrKickedFromGroup),
		errors.Is(err, tele.ErrKickedFromSuperGroup),
		errors.Is(err, tele.ErrKickedFromChannel):
		return fmt.Errorf("%w: %s", transport.ErrNotMember, err)
	case errors.Is(err, tele.ErrNoRightsToSend):
		return fmt.Errorf("%w: %s", transport.ErrWriteForbidden, err)
	default:
		return err
	}
}
