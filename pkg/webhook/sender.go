package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// ContactLookup resolves a user id to directory contact details.
type ContactLookup interface {
	Contact(ctx context.Context, userID string) (messaging.Contact, error)
}

// Delivery is the JSON body posted to the relay for every attempt.
type Delivery struct {
	JobID       string            `json:"job_id"`
	MessageID   string            `json:"message_id"`
	Channel     messaging.Channel `json:"channel"`
	Priority    int               `json:"priority"`
	Attempt     int               `json:"attempt"`
	Subject     string            `json:"subject,omitempty"`
	Content     string            `json:"content"`
	RecipientID string            `json:"recipient_id"`
	Name        string            `json:"name,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
}

// Sender hands jobs of the relayed channels (sms, push, phone) to an HTTP
// relay that owns the provider integrations.
type Sender struct {
	endpoint string
	secret   string
	contacts ContactLookup
	client   *http.Client
	breaker  *CircuitBreaker
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithCircuitBreaker replaces the breaker built from Config.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(s *Sender) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for signatures.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSender creates a relay sender for cfg.URL.
func NewSender(cfg Config, contacts ContactLookup, opts ...Option) (*Sender, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: relay url %q", ErrInvalidConfiguration, cfg.URL)
	}
	if contacts == nil {
		return nil, fmt.Errorf("%w: contact lookup is required", ErrInvalidConfiguration)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Sender{
		endpoint: u.String(),
		secret:   cfg.Secret,
		contacts: contacts,
		client:   &http.Client{Timeout: timeout},
		breaker:  NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.RecoveryTimeout),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ dispatch.Sender = (*Sender)(nil)

// Send implements dispatch.Sender.
// SMS and phone jobs for contacts without a number are blocked. A 4xx answer
// other than 408, 425 and 429 fails the job permanently (410 bounces it).
// Everything else, including an open breaker, is retried by the worker.
func (s *Sender) Send(ctx context.Context, job dispatch.Job) error {
	contact, err := s.contacts.Contact(ctx, job.RecipientID)
	if errors.Is(err, messaging.ErrUnknownContact) {
		return dispatch.Permanent(messaging.DeliveryBlocked, fmt.Errorf("lookup contact %s: %w", job.RecipientID, err))
	}
	if err != nil {
		return fmt.Errorf("lookup contact %s: %w", job.RecipientID, err)
	}
	if needsPhone(job.Channel) && contact.Phone == "" {
		return dispatch.Permanent(messaging.DeliveryBlocked, fmt.Errorf("%w: %s", ErrNoPhone, job.RecipientID))
	}

	if !s.breaker.Allow() {
		return ErrCircuitOpen
	}

	now := s.now()
	body, err := json.Marshal(Delivery{
		JobID:       job.ID.String(),
		MessageID:   job.MessageID,
		Channel:     job.Channel,
		Priority:    job.Priority,
		Attempt:     job.RetryCount + 1,
		Subject:     job.Subject,
		Content:     job.Content,
		RecipientID: job.RecipientID,
		Name:        contact.Name,
		Phone:       contact.Phone,
		SentAt:      now.UTC(),
	})
	if err != nil {
		return dispatch.Permanent(messaging.DeliveryFailed, fmt.Errorf("encode delivery: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "commhub-relay/1.0")
	req.Header.Set(HeaderDelivery, job.ID.String())
	if s.secret != "" {
		ts := now.Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, Sign(s.secret, ts, body))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	attrs := []slog.Attr{
		logger.JobID(job.ID),
		logger.MessageID(job.MessageID),
		logger.Channel(job.Channel),
		slog.Int("status", resp.StatusCode),
		logger.Duration(time.Since(start)),
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		s.breaker.RecordSuccess()
		s.logger.LogAttrs(ctx, slog.LevelDebug, "relay accepted delivery", attrs...)
		return nil
	case retryable(code):
		s.breaker.RecordFailure()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "relay unavailable", attrs...)
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	default:
		// The relay answered, so it is healthy even though it refused this job.
		s.breaker.RecordSuccess()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "relay rejected delivery", attrs...)
		status := messaging.DeliveryFailed
		if code == http.StatusGone {
			status = messaging.DeliveryBounced
		}
		return dispatch.Permanent(status, fmt.Errorf("%w: status %d", ErrRejected, code))
	}
}

func needsPhone(ch messaging.Channel) bool {
	return ch == messaging.ChannelSMS || ch == messaging.ChannelPhone
}

func retryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 || code < 200 || (code >= 300 && code < 400)
}
