package provider

import (
	"testing"

	"github.com/goailoop/ailoop/model"
)

func TestMapReply(t *testing.T) {
	cases := []struct {
		text string
		want model.ResponseType
	}{
		{"y", model.ResponseAuthorizationApproved},
		{"YES", model.ResponseAuthorizationApproved},
		{"ok", model.ResponseAuthorizationApproved},
		{"", model.ResponseAuthorizationDenied},
		{"no", model.ResponseAuthorizationDenied},
		{"deny", model.ResponseAuthorizationDenied},
		{"hello there", model.ResponseText},
	}
	for _, c := range cases {
		_, got := MapReply(c.text)
		if got != c.want {
			t.Errorf("MapReply(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestNewTelegramSinkValidatesChatID(t *testing.T) {
	if _, err := NewTelegramSink("token", ""); err == nil {
		t.Error("expected error for empty chat_id")
	}
	if _, err := NewTelegramSink("token", "abc123"); err == nil {
		t.Error("expected error for non-numeric chat_id")
	}
	if _, err := NewTelegramSink("token", "-123456789"); err != nil {
		t.Errorf("expected group chat_id to validate, got %v", err)
	}
	if _, err := NewTelegramSink("token", "123456789"); err != nil {
		t.Errorf("expected numeric chat_id to validate, got %v", err)
	}
}
