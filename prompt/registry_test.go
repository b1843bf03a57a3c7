package prompt

import (
	"testing"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

func TestRegisterAndCompleteDeliversOnce(t *testing.T) {
	r := NewRegistry()
	ch, completer, timeout := r.Register(uuid.New(), nil, TypeQuestion)
	if timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", timeout, DefaultTimeout)
	}

	answer := "hi"
	if !completer.Complete(Result{Answer: &answer, ResponseType: model.ResponseText}) {
		t.Fatal("expected first Complete to succeed")
	}
	got := <-ch
	if *got.Answer != "hi" {
		t.Errorf("answer = %q, want %q", *got.Answer, "hi")
	}

	// Second call is a no-op: the entry is already gone.
	if completer.Complete(Result{ResponseType: model.ResponseText}) {
		t.Error("expected second Complete to be a no-op")
	}
}

func TestSubmitReplyOnEmptyRegistryIsNoop(t *testing.T) {
	r := NewRegistry()
	if r.SubmitReply(nil, nil, model.ResponseText) {
		t.Error("expected SubmitReply on empty registry to return false")
	}
}

func TestSubmitReplyMatchesByReplyToFirst(t *testing.T) {
	r := NewRegistry()
	replyA := "a-id"
	replyB := "b-id"
	chA, _, _ := r.Register(uuid.New(), &replyA, TypeQuestion)
	chB, _, _ := r.Register(uuid.New(), &replyB, TypeQuestion)

	answer := "for-b"
	if !r.SubmitReply(&replyB, &answer, model.ResponseText) {
		t.Fatal("expected SubmitReply to find matching entry")
	}

	select {
	case got := <-chB:
		if *got.Answer != "for-b" {
			t.Errorf("chB answer = %q, want for-b", *got.Answer)
		}
	default:
		t.Fatal("expected chB to receive a result")
	}
	select {
	case <-chA:
		t.Error("chA should not have received anything")
	default:
	}
}

func TestSubmitReplyFallsBackToOldest(t *testing.T) {
	r := NewRegistry()
	ch1, _, _ := r.Register(uuid.New(), nil, TypeQuestion)
	_, _, _ = r.Register(uuid.New(), nil, TypeQuestion)

	if !r.SubmitReply(nil, nil, model.ResponseTimeout) {
		t.Fatal("expected a match via oldest-first fallback")
	}
	select {
	case <-ch1:
	default:
		t.Error("expected the oldest entry to be resolved")
	}
}

func TestSubmitReplyForMessageIsStrict(t *testing.T) {
	r := NewRegistry()
	targetID := uuid.New()
	_, _, _ = r.Register(uuid.New(), nil, TypeQuestion)
	chTarget, _, _ := r.Register(targetID, nil, TypeQuestion)

	if !r.SubmitReplyForMessage(targetID, nil, model.ResponseText) {
		t.Fatal("expected strict match to succeed")
	}
	select {
	case <-chTarget:
	default:
		t.Error("expected the targeted entry to resolve")
	}

	if r.SubmitReplyForMessage(uuid.New(), nil, model.ResponseText) {
		t.Error("expected no match for an unregistered message id")
	}
}
