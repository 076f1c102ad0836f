package sink

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "dwmblocks/pkg/logx"
)

// telegramTextLimit is Telegram's hard cap on message text length.
const telegramTextLimit = 4096

type TelegramConfig struct {
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec int
}

// telegramAPI is the subset of *tele.Bot the sink needs.
type telegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram mirrors the status line into a single Telegram message: the first
// publish sends it, later ones edit it in place.
//
// Publish never blocks. Only the newest pending text is kept; identical
// consecutive texts are skipped because Telegram rejects no-op edits.
type Telegram struct {
	cfg TelegramConfig
	api telegramAPI
	log logx.Logger

	limiter *rate.Limiter
	pending chan string

	// owned by the worker goroutine
	msg  *tele.Message
	last string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return newTelegram(cfg, b, log), nil
}

func newTelegram(cfg TelegramConfig, api telegramAPI, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := max(1, cfg.RatePerSec)
	ctx, cancel := context.WithCancel(context.Background())
	t := &Telegram{
		cfg:     cfg,
		api:     api,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		pending: make(chan string, 1),
		cancel:  cancel,
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.worker(ctx)
	}()
	return t
}

func (t *Telegram) Publish(text string) {
	for {
		select {
		case t.pending <- text:
			return
		default:
		}
		// Slot taken by an older text: drop it and retry.
		select {
		case <-t.pending:
		default:
		}
	}
}

// Close stops the worker. Pending text is dropped.
func (t *Telegram) Close() error {
	t.cancel()
	t.wg.Wait()
	return nil
}

func (t *Telegram) worker(ctx context.Context) {
	for {
		var text string
		select {
		case <-ctx.Done():
			return
		case text = <-t.pending:
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return
		}
		// Something newer may have arrived while waiting for a token.
		select {
		case text = <-t.pending:
		default:
		}

		text = truncateText(strings.TrimSpace(text), telegramTextLimit)
		if text == "" || text == t.last {
			continue
		}
		if err := t.push(text); err != nil {
			t.log.Debug("publish failed", logx.String("sink", KindTelegram), logx.Err(err))
			continue
		}
		t.last = text
	}
}

func (t *Telegram) push(text string) error {
	opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: t.cfg.ThreadID}
	if t.msg == nil {
		m, err := t.api.Send(&tele.Chat{ID: t.cfg.ChatID}, text, opt)
		if err != nil {
			return err
		}
		t.msg = m
		return nil
	}
	_, err := t.api.Edit(t.msg, text, opt)
	return err
}

func truncateText(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	// Cutting mid-rune leaves invalid bytes at the end; drop them.
	return strings.ToValidUTF8(s[:maxN-3], "") + "..."
}
