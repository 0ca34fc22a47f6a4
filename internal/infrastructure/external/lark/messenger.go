package lark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/garyjia/commute-approvals/internal/application/port"
)

// Sender delivers raw IM messages; *SDKClient implements it
type Sender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// MessengerConfig tunes delivery to the Lark API
type MessengerConfig struct {
	Attempts            uint          // tries per message
	RetryDelay          time.Duration // base of the exponential backoff
	RatePerSecond       float64       // outbound message rate
	Burst               int           // messages allowed above the rate at once
	CallTimeout         time.Duration // per API call
	BreakerFailures     uint32        // consecutive failures that open the breaker
	BreakerOpenDuration time.Duration // how long the breaker stays open
}

// DefaultMessengerConfig returns limits below the Lark bot quota
func DefaultMessengerConfig() MessengerConfig {
	return MessengerConfig{
		Attempts:            3,
		RetryDelay:          200 * time.Millisecond,
		RatePerSecond:       20,
		Burst:               5,
		CallTimeout:         10 * time.Second,
		BreakerFailures:     5,
		BreakerOpenDuration: 30 * time.Second,
	}
}

// Messenger implements port.Notifier by sending interactive cards
type Messenger struct {
	sender  Sender
	cfg     MessengerConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewMessenger creates a new Lark notifier
func NewMessenger(sender Sender, cfg MessengerConfig, logger *zap.Logger) *Messenger {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lark-im",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// non-retryable API rejections do not open the breaker
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && !apiErr.Retryable())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Messenger{
		sender:  sender,
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Send implements port.Notifier
func (m *Messenger) Send(ctx context.Context, recipient string, msg port.Message) error {
	if recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	content, err := buildCard(msg)
	if err != nil {
		return err
	}
	idType := receiveIDType(recipient)

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var messageID string
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(m.cfg.Attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.Delay(m.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
	)
	err = r.Do(func() error {
		result, err := m.cb.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
			defer cancel()
			return m.sender.SendMessage(callCtx, idType, recipient, "interactive", content)
		})
		if err != nil {
			return err
		}
		messageID = result.(string)
		return nil
	})
	if err != nil {
		m.logger.Error("Failed to send Lark message",
			zap.String("receive_id", recipient),
			zap.String("title", msg.Title),
			zap.Error(err))
		return fmt.Errorf("failed to send message to %s: %w", recipient, err)
	}

	m.logger.Info("Lark message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", recipient))
	return nil
}

// receiveIDType picks the Lark ID type from the recipient's format
func receiveIDType(recipient string) string {
	switch {
	case strings.HasPrefix(recipient, "oc_"):
		return "chat_id"
	case strings.Contains(recipient, "@"):
		return "email"
	case strings.HasPrefix(recipient, "ou_"):
		return "open_id"
	default:
		return "user_id"
	}
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// Verify interface compliance
var _ port.Notifier = (*Messenger)(nil)
