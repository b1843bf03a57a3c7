package model

import (
	"testing"
	"time"
)

func TestNewStampsIDAndTimestamp(t *testing.T) {
	before := time.Now()
	m := New("ops", SenderAgent, Content{Type: ContentQuestion, Text: "proceed?"})
	after := time.Now()

	if m.ID.String() == "" {
		t.Fatal("New did not stamp an id")
	}
	if m.Timestamp.Before(before) || m.Timestamp.After(after) {
		t.Errorf("Timestamp = %v, want between %v and %v", m.Timestamp, before, after)
	}
	if m.Channel != "ops" || m.SenderType != SenderAgent {
		t.Errorf("m = %+v", m)
	}
}

func TestIsPrompt(t *testing.T) {
	cases := []struct {
		name string
		typ  ContentType
		want bool
	}{
		{"question", ContentQuestion, true},
		{"authorization", ContentAuthorization, true},
		{"navigate", ContentNavigate, true},
		{"notification", ContentNotification, false},
		{"response", ContentResponse, false},
		{"task create", ContentTaskCreate, false},
	}
	for _, c := range cases {
		m := Message{Content: Content{Type: c.typ}}
		if got := m.IsPrompt(); got != c.want {
			t.Errorf("%s: IsPrompt() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestEffectiveTimeout(t *testing.T) {
	def := 300 * time.Second

	withNone := Message{Content: Content{}}
	if got := withNone.EffectiveTimeout(def); got != def {
		t.Errorf("no timeout set: got %v, want default %v", got, def)
	}

	withExplicit := Message{Content: Content{TimeoutSeconds: 45}}
	if got := withExplicit.EffectiveTimeout(def); got != 45*time.Second {
		t.Errorf("explicit timeout: got %v, want 45s", got)
	}
}
