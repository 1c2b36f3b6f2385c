package dss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"

	"github.com/openutm/flightdeck/internal/logger"
)

// notifyTimeout bounds a single peer notification.
const notifyTimeout = 5 * time.Second

// Notifier pushes operational intent details to peer USSs after a change at
// the DSS. Each peer gets its own circuit breaker so one dead peer does not
// delay the others.
type Notifier struct {
	selfBaseURL string
	httpClient  *http.Client
	tokens      *TokenProvider

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewNotifier returns a notifier that skips subscribers matching
// selfBaseURL.
func NewNotifier(selfBaseURL string, tokens *TokenProvider) *Notifier {
	return &Notifier{
		selfBaseURL: selfBaseURL,
		httpClient:  &http.Client{Timeout: notifyTimeout},
		tokens:      tokens,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (n *Notifier) breakerFor(baseURL string) *gobreaker.CircuitBreaker {
	n.mu.Lock()
	defer n.mu.Unlock()
	if breaker, ok := n.breakers[baseURL]; ok {
		return breaker
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    baseURL,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	n.breakers[baseURL] = breaker
	return breaker
}

// NotifySubscribers pushes the notification to every subscriber the DSS
// listed, excluding ourselves. Failures are logged per peer and do not stop
// the remaining notifications. Returns the number of peers notified.
func (n *Notifier) NotifySubscribers(ctx context.Context, subscribers []SubscriberToNotify, notification *PutOperationalIntentDetailsParameters) int {
	notified := 0
	for _, subscriber := range subscribers {
		if subscriber.USSBaseURL == "" || subscriber.USSBaseURL == n.selfBaseURL {
			continue
		}
		peerNotification := *notification
		peerNotification.Subscriptions = subscriber.Subscriptions
		if err := n.notifyPeer(ctx, subscriber.USSBaseURL, &peerNotification); err != nil {
			logger.WarnCtx(ctx, "Failed to notify peer USS",
				"uss_base_url", subscriber.USSBaseURL,
				logger.OpIntentID(notification.OperationalIntentID),
				logger.Err(err))
			continue
		}
		notified++
	}
	return notified
}

// notifyPeer posts the details to one peer behind its circuit breaker with a
// single retry on transient failure.
func (n *Notifier) notifyPeer(ctx context.Context, baseURL string, notification *PutOperationalIntentDetailsParameters) error {
	audience, err := AudienceFromURL(baseURL)
	if err != nil {
		return err
	}
	token, err := n.tokens.Token(ctx, audience, TokenTypeSCD)
	if err != nil {
		return err
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	breaker := n.breakerFor(baseURL)
	_, err = breaker.Execute(func() (any, error) {
		return nil, retry.Do(
			func() error {
				return n.post(ctx, baseURL, token, body)
			},
			retry.Attempts(2),
			retry.Delay(200*time.Millisecond),
			retry.LastErrorOnly(true),
		)
	})
	return err
}

func (n *Notifier) post(ctx context.Context, baseURL, token string, body []byte) error {
	url := baseURL + "/uss/v1/operational_intents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}
