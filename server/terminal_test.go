package server

import (
	"testing"

	"github.com/goailoop/ailoop/model"
)

func TestParseAuthorizationDecision(t *testing.T) {
	cases := map[string]model.ResponseType{
		"":         model.ResponseAuthorizationApproved,
		"y":        model.ResponseAuthorizationApproved,
		"Yes":      model.ResponseAuthorizationApproved,
		"OK":       model.ResponseAuthorizationApproved,
		"n":        model.ResponseAuthorizationDenied,
		"No":       model.ResponseAuthorizationDenied,
		"deny":     model.ResponseAuthorizationDenied,
		"gibberish": model.ResponseAuthorizationApproved,
	}
	for input, want := range cases {
		if got := parseAuthorizationDecision(input); got != want {
			t.Errorf("parseAuthorizationDecision(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestResolveChoiceByIndex(t *testing.T) {
	choices := []string{"red", "green", "blue"}
	value, idx := resolveChoice("2", choices)
	if value != "green" || idx == nil || *idx != 1 {
		t.Errorf("value = %q, idx = %v", value, idx)
	}
}

func TestResolveChoiceByText(t *testing.T) {
	choices := []string{"red", "green", "blue"}
	value, idx := resolveChoice(" Blue ", choices)
	if value != "blue" || idx == nil || *idx != 2 {
		t.Errorf("value = %q, idx = %v", value, idx)
	}
}

func TestResolveChoiceFallsBackToVerbatimText(t *testing.T) {
	choices := []string{"red", "green"}
	value, idx := resolveChoice("purple", choices)
	if value != "purple" || idx != nil {
		t.Errorf("value = %q, idx = %v", value, idx)
	}
}

func TestResolveChoiceNoChoicesReturnsTrimmedInput(t *testing.T) {
	value, idx := resolveChoice("  free text  ", nil)
	if value != "free text" || idx != nil {
		t.Errorf("value = %q, idx = %v", value, idx)
	}
}
