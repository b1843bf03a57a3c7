// Package provider defines the out-of-band reply-source contract and the
// shared text-to-response mapping used by every concrete provider.
package provider

import (
	"context"
	"strings"

	"github.com/goailoop/ailoop/model"
)

// ProviderReply is one inbound reply observed by a ReplySource.
type ProviderReply struct {
	ReplyToMessageID string
	Answer           *string
	ResponseType     model.ResponseType
}

// ReplySource polls an out-of-band surface for human replies. Next blocks
// (subject to ctx) until a reply is available or the source is exhausted;
// implementations with long-poll semantics should respect ctx cancellation.
type ReplySource interface {
	Next(ctx context.Context) (*ProviderReply, error)
}

// MapReply applies the shared text-to-response heuristic: a bare "y"/"yes"/
// "ok" reply approves an authorization; "n"/"no"/"deny"/"denied", or an
// empty reply, denies one (empty is treated as a denial for safety, not an
// approval); anything else is free text. The same rules apply regardless
// of whether the original prompt was a question or an authorization — see
// the Open Questions note in SPEC_FULL.md: a reply of "y" to a free-text
// question is deliberately read as an approval, not as the literal text
// "y". Note this default differs from the local terminal's authorization
// prompt, which treats empty input as an approval — that asymmetry is
// intentional and documented where the terminal path is implemented.
func MapReply(text string) (answer *string, responseType model.ResponseType) {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	switch trimmed {
	case "y", "yes", "ok":
		return nil, model.ResponseAuthorizationApproved
	case "n", "no", "deny", "denied", "":
		return nil, model.ResponseAuthorizationDenied
	default:
		a := strings.TrimSpace(text)
		return &a, model.ResponseText
	}
}
