package server

import (
	"context"
	"testing"
	"time"

	"github.com/goailoop/ailoop/model"
)

func TestDispatchNotificationIsFireAndForget(t *testing.T) {
	s := newTestServer(t)
	msg := model.New("demo", model.SenderAgent, model.Content{
		Type:     model.ContentNotification,
		Text:     "deploy finished",
		Priority: model.PriorityNormal,
	})
	// Notifications have no pending-prompt entry and no response; dispatching
	// one must not block or panic.
	s.dispatchMessage(context.Background(), msg)
}

func TestDispatchQuestionTimesOutWithoutATerminal(t *testing.T) {
	s := newTestServer(t)
	msg := model.New("demo", model.SenderAgent, model.Content{
		Type:           model.ContentQuestion,
		Text:           "proceed?",
		TimeoutSeconds: 1,
	})

	done := make(chan model.ResponseType, 1)
	go func() { done <- s.dispatchQuestion(context.Background(), msg) }()

	select {
	case rt := <-done:
		if rt != model.ResponseTimeout {
			t.Errorf("responseType = %s, want timeout", rt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dispatchQuestion did not return within the message timeout")
	}

	// The timeout response must have been broadcast into channel history,
	// correlated back to the original question.
	recent := s.history.Recent("demo", 10)
	found := false
	for _, m := range recent {
		if m.CorrelationID != nil && *m.CorrelationID == msg.ID && m.Content.ResponseType == model.ResponseTimeout {
			found = true
		}
	}
	if !found {
		t.Error("expected a correlated timeout response in history")
	}
}

func TestDispatchAuthorizationTimesOutDenied(t *testing.T) {
	s := newTestServer(t)
	msg := model.New("demo", model.SenderAgent, model.Content{
		Type:           model.ContentAuthorization,
		Action:         "deploy to prod",
		TimeoutSeconds: 1,
	})

	done := make(chan model.ResponseType, 1)
	go func() { done <- s.dispatchAuthorization(context.Background(), msg) }()

	select {
	case rt := <-done:
		if rt != model.ResponseAuthorizationDenied {
			t.Errorf("responseType = %s, want authorization_denied", rt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dispatchAuthorization did not return within the message timeout")
	}
}

func TestDispatchNavigateCancelledOnContextDone(t *testing.T) {
	s := newTestServer(t)
	msg := model.New("demo", model.SenderAgent, model.Content{
		Type: model.ContentNavigate,
		URL:  "https://example.com",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan model.ResponseType, 1)
	go func() { done <- s.dispatchNavigate(ctx, msg) }()
	cancel()

	select {
	case rt := <-done:
		if rt != model.ResponseCancelled {
			t.Errorf("responseType = %s, want cancelled", rt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dispatchNavigate did not return after context cancellation")
	}
}

func TestDispatchMessageReenqueuesOnCancel(t *testing.T) {
	s := newTestServer(t)
	msg := model.New("demo", model.SenderAgent, model.Content{
		Type: model.ContentNavigate,
		URL:  "https://example.com",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.dispatchMessage(ctx, msg)

	if _, ok := s.channels.Dequeue("demo"); !ok {
		t.Error("expected the cancelled navigate message to be re-enqueued")
	}
}
