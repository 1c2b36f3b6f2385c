package dss

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNotifySubscribers(t *testing.T) {
	var received atomic.Int32
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uss/v1/operational_intents" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var notification PutOperationalIntentDetailsParameters
		if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
			t.Errorf("failed to decode: %v", err)
		}
		if notification.OperationalIntentID != "opint-1" {
			t.Errorf("unexpected id %q", notification.OperationalIntentID)
		}
		if len(notification.Subscriptions) != 1 || notification.Subscriptions[0].SubscriptionID != "sub-1" {
			t.Errorf("unexpected subscriptions %v", notification.Subscriptions)
		}
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer peer.Close()

	store, _ := newTestKV(t)
	tokens := NewTokenProvider(AuthConfig{}, store)
	notifier := NewNotifier("https://self.example.com", tokens)

	subscribers := []SubscriberToNotify{
		{USSBaseURL: peer.URL, Subscriptions: []SubscriptionState{{SubscriptionID: "sub-1", NotificationIndex: 1}}},
		// Our own base URL must be skipped.
		{USSBaseURL: "https://self.example.com", Subscriptions: []SubscriptionState{{SubscriptionID: "sub-2"}}},
	}
	notification := &PutOperationalIntentDetailsParameters{
		OperationalIntentID: "opint-1",
		OperationalIntent: &OperationalIntent{
			Reference: OperationalIntentReference{ID: "opint-1", State: IntentStateActivated},
		},
	}

	notified := notifier.NotifySubscribers(context.Background(), subscribers, notification)
	if notified != 1 {
		t.Errorf("expected 1 peer notified, got %d", notified)
	}
	if received.Load() != 1 {
		t.Errorf("peer received %d notifications", received.Load())
	}
}

func TestNotifyPeerFailureDoesNotStopOthers(t *testing.T) {
	var received atomic.Int32
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	store, _ := newTestKV(t)
	tokens := NewTokenProvider(AuthConfig{}, store)
	notifier := NewNotifier("https://self.example.com", tokens)

	subscribers := []SubscriberToNotify{
		{USSBaseURL: broken.URL},
		{USSBaseURL: healthy.URL},
	}
	notification := &PutOperationalIntentDetailsParameters{OperationalIntentID: "opint-1"}

	notified := notifier.NotifySubscribers(context.Background(), subscribers, notification)
	if notified != 1 {
		t.Errorf("expected 1 peer notified, got %d", notified)
	}
	if received.Load() != 1 {
		t.Errorf("healthy peer received %d notifications", received.Load())
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	store, _ := newTestKV(t)
	tokens := NewTokenProvider(AuthConfig{}, store)
	notifier := NewNotifier("https://self.example.com", tokens)

	notification := &PutOperationalIntentDetailsParameters{OperationalIntentID: "opint-1"}
	subscribers := []SubscriberToNotify{{USSBaseURL: broken.URL}}

	for i := 0; i < 5; i++ {
		notifier.NotifySubscribers(context.Background(), subscribers, notification)
	}
	// Each notify attempt retries twice. After 3 consecutive breaker
	// failures the circuit opens and stops hitting the peer.
	if calls.Load() > 6 {
		t.Errorf("breaker never opened, peer saw %d calls", calls.Load())
	}
}
