// Package channel implements channel name validation, the bounded message
// history ring, and the per-channel queue/connection manager.
package channel

import (
	"fmt"
	"strings"
)

const maxNameLength = 64

var reserved = map[string]bool{
	"system":   true,
	"admin":    true,
	"internal": true,
	"reserved": true,
	"ailoop":   true,
}

// ValidationError describes why a channel name was rejected.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid channel name %q: %s", e.Name, e.Reason)
}

// Validate checks name against the channel-naming grammar: 1..64 characters,
// starting with an ASCII letter or digit, body restricted to letters,
// digits, '-', and '_', and not a member of the reserved set. It is a pure
// function — the same name always produces the same result.
func Validate(name string) error {
	if name == "" {
		return &ValidationError{Name: name, Reason: "empty"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Name: name, Reason: "too long"}
	}
	first := name[0]
	if !isAlnum(first) {
		return &ValidationError{Name: name, Reason: "must start with a letter or digit"}
	}
	for _, r := range name {
		if r > 127 || (!isAlnum(byte(r)) && r != '-' && r != '_') {
			return &ValidationError{Name: name, Reason: "contains invalid characters"}
		}
	}
	if reserved[strings.ToLower(name)] {
		return &ValidationError{Name: name, Reason: "reserved name"}
	}
	return nil
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
