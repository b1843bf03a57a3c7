package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/goailoop/ailoop/model"
)

// terminalAvailable reports whether stdin is an interactive TTY. A server
// run without an attached terminal (under a supervisor, in CI) skips the
// raw-mode input race entirely rather than failing every prompt.
func terminalAvailable() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// lineResult is what one raw-terminal read produces.
type lineResult struct {
	text string
	ok   bool // false means Escape was pressed (skip)
	err  error
}

// readLineAsync puts the terminal in raw mode and reads keystrokes in a
// background goroutine until Enter (ok=true, text holds the buffer) or
// Escape (ok=false). The caller selects the returned channel against a
// timeout or a competing pending-prompt receiver; if another branch wins,
// the read goroutine keeps running, with the terminal in raw mode and
// keystrokes still consumed, until Enter or Escape is read or a keystroke
// arrives after ctx is cancelled; only then is the terminal restored — the
// same "detached blocking task" tradeoff the teacher's raw-mode reader makes.
func readLineAsync(ctx context.Context) <-chan lineResult {
	ch := make(chan lineResult, 1)
	go func() {
		text, ok, err := readLine(ctx)
		ch <- lineResult{text: text, ok: ok, err: err}
	}()
	return ch
}

func readLine(ctx context.Context) (string, bool, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", false, fmt.Errorf("terminal: enable raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	var buf strings.Builder
	reader := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		b, err := reader.ReadByte()
		if err != nil {
			return "", false, fmt.Errorf("terminal: read: %w", err)
		}
		switch b {
		case 0x1b: // Escape
			return "", false, nil
		case '\r', '\n':
			fmt.Println()
			return strings.TrimSpace(buf.String()), true, nil
		case 0x7f, 0x08: // Backspace / Ctrl-H
			if buf.Len() > 0 {
				s := buf.String()
				buf.Reset()
				buf.WriteString(s[:len(s)-1])
				fmt.Print("\x08 \x08")
			}
		default:
			if b >= 0x20 && b < 0x7f {
				buf.WriteByte(b)
				fmt.Printf("%c", b)
			}
		}
	}
}

// parseAuthorizationDecision maps raw terminal input to an approval
// decision. Empty input (bare Enter) and a handful of affirmative words
// approve; a handful of negative words deny; anything else falls back to
// approved with a logged warning — a softer default than the agent-side
// client's deny-on-timeout, and intentionally so (see the open question
// this asymmetry is recorded under).
func parseAuthorizationDecision(text string) model.ResponseType {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "y", "yes", "ok", "authorized", "approve":
		return model.ResponseAuthorizationApproved
	case "n", "no", "deny", "denied", "reject":
		return model.ResponseAuthorizationDenied
	default:
		log.Printf("terminal: unrecognized input %q; defaulting to approved", text)
		return model.ResponseAuthorizationApproved
	}
}

// resolveChoice maps a free-form answer against a message's multiple-choice
// list: a 1-based index, else a case-insensitive text match. On no match
// the trimmed text is returned verbatim with a nil index.
func resolveChoice(text string, choices []string) (value string, index *int) {
	trimmed := strings.TrimSpace(text)
	if len(choices) == 0 {
		return trimmed, nil
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(choices) {
		i := n - 1
		return choices[i], &i
	}
	for i, c := range choices {
		if strings.EqualFold(strings.TrimSpace(c), trimmed) {
			i := i
			return c, &i
		}
	}
	return trimmed, nil
}

// openURL launches the platform-appropriate browser opener for url. Errors
// are logged, never propagated — a failed browser launch must not fail the
// navigate dispatch itself.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", "", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("dispatch: open url %q: %v", url, err)
	}
}
