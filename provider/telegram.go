package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goailoop/ailoop/model"
)

const (
	telegramAPIBase          = "https://api.telegram.org/bot"
	telegramMaxMessageLength = 4096
	telegramLongPollSeconds  = 30
	sendRetryAttempts        = 3
	sendRetryBaseDelay       = time.Second
	pollBackoffBase          = 5 * time.Second
	pollBackoffMax           = 60 * time.Second
	httpTimeout              = 30 * time.Second
)

// TelegramSink sends messages through the Telegram Bot API's sendMessage
// endpoint. The token is held only in memory and is never logged.
type TelegramSink struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSink validates chatID (numeric, optionally "-"-prefixed for
// groups) and returns a ready sink.
func NewTelegramSink(token, chatID string) (*TelegramSink, error) {
	if chatID == "" {
		return nil, fmt.Errorf("telegram: chat_id cannot be empty")
	}
	for i, r := range chatID {
		if (r >= '0' && r <= '9') || (i == 0 && r == '-') {
			continue
		}
		return nil, fmt.Errorf("telegram: chat_id %q is not valid; must be numeric, optionally '-'-prefixed for groups", chatID)
	}
	return &TelegramSink{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: httpTimeout},
	}, nil
}

// Name implements broadcast.Sink.
func (s *TelegramSink) Name() string { return "telegram" }

// Send implements broadcast.Sink.
func (s *TelegramSink) Send(m model.Message) error {
	_, err := s.sendWithRetry(formatMessage(m))
	return err
}

// SendAndGetReplyToID implements broadcast.Sink.
func (s *TelegramSink) SendAndGetReplyToID(m model.Message) (string, error) {
	return s.sendWithRetry(formatMessage(m))
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      *struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (s *TelegramSink) sendWithRetry(text string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < sendRetryAttempts; attempt++ {
		id, err := s.trySend(text)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt < sendRetryAttempts-1 && isRetryableError(err) {
			time.Sleep(sendRetryBaseDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		return "", err
	}
	return "", lastErr
}

func (s *TelegramSink) trySend(text string) (string, error) {
	body, err := json.Marshal(map[string]string{"chat_id": s.chatID, "text": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, telegramAPIBase+s.token+"/sendMessage", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("telegram: sendMessage %d: unparseable response", resp.StatusCode)
	}
	if !parsed.OK {
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(parsed.Description), "chat not found") {
			return "", fmt.Errorf("telegram: chat not found (verify chat_id %q and that the user has started the bot)", s.chatID)
		}
		return "", fmt.Errorf("telegram: sendMessage %d: %s", resp.StatusCode, parsed.Description)
	}
	if parsed.Result == nil {
		return "", fmt.Errorf("telegram: sendMessage returned ok=true with no result")
	}
	return strconv.FormatInt(parsed.Result.MessageID, 10), nil
}

func isRetryableError(err error) bool {
	s := strings.ToLower(err.Error())
	for _, needle := range []string{"timeout", "connection", "network", "dns", "temporarily unavailable", " 5", " 429", "too many requests", "rate limit"} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func formatMessage(m model.Message) string {
	var text string
	switch m.Content.Type {
	case model.ContentQuestion:
		text = fmt.Sprintf("Question [%s]: %s", m.Channel, m.Content.Text)
	case model.ContentAuthorization:
		text = fmt.Sprintf("Authorization [%s]: %s", m.Channel, m.Content.Action)
	case model.ContentNotification:
		text = fmt.Sprintf("Notification [%s]: %s", m.Channel, m.Content.Text)
	case model.ContentNavigate:
		text = fmt.Sprintf("Navigation [%s]: %s", m.Channel, m.Content.URL)
	case model.ContentResponse:
		answer := string(m.Content.ResponseType)
		if m.Content.Answer != nil {
			answer = *m.Content.Answer
		}
		text = fmt.Sprintf("Response [%s]: %s", m.Channel, answer)
	case model.ContentWorkflowProgress:
		text = fmt.Sprintf("Workflow [%s]: %s – %s (%s)", m.Channel, m.Content.WorkflowName, m.Content.CurrentState, m.Content.Status)
	case model.ContentWorkflowCompleted:
		text = fmt.Sprintf("Workflow [%s]: %s completed – %s", m.Channel, m.Content.WorkflowName, m.Content.Status)
	case model.ContentStdout:
		text = fmt.Sprintf("Stdout [%s]: %s – %s", m.Channel, m.Content.ExecutionID, truncate(m.Content.Data, 500))
	case model.ContentStderr:
		text = fmt.Sprintf("Stderr [%s]: %s – %s", m.Channel, m.Content.ExecutionID, truncate(m.Content.Data, 500))
	case model.ContentTaskCreate:
		text = fmt.Sprintf("Task [%s]: %s created – %s (state: %s)", m.Channel, m.Content.TaskID, m.Content.Title, m.Content.State)
	case model.ContentTaskUpdate:
		text = fmt.Sprintf("Task [%s]: %s updated – state: %s", m.Channel, m.Content.TaskID, m.Content.State)
	default:
		text = fmt.Sprintf("[%s] %s", m.Channel, m.Content.Type)
	}
	return truncateMessage(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateMessage(text string) string {
	return truncate(text, telegramMaxMessageLength)
}

// TelegramReplySource long-polls getUpdates and surfaces each reply as a
// ProviderReply.
type TelegramReplySource struct {
	token      string
	client     *http.Client
	nextOffset int64
	backoff    int64 // seconds
}

// NewTelegramReplySource returns a ready reply source for token.
func NewTelegramReplySource(token string) *TelegramReplySource {
	return &TelegramReplySource{
		token:   token,
		client:  &http.Client{Timeout: httpTimeout + telegramLongPollSeconds*time.Second},
		backoff: int64(pollBackoffBase.Seconds()),
	}
}

type getUpdatesResponse struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID int64 `json:"update_id"`
		Message  *struct {
			Text          string `json:"text"`
			ReplyToMessage *struct {
				MessageID int64 `json:"message_id"`
			} `json:"reply_to_message"`
		} `json:"message"`
	} `json:"result"`
}

// Next implements provider.ReplySource.
func (s *TelegramReplySource) Next(ctx context.Context) (*ProviderReply, error) {
	offset := atomic.LoadInt64(&s.nextOffset)
	u := fmt.Sprintf("%s%s/getUpdates?offset=%d&timeout=%d",
		telegramAPIBase, s.token, offset, telegramLongPollSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.backOff(ctx)
		return nil, fmt.Errorf("telegram: getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.backOff(ctx)
		return nil, fmt.Errorf("telegram: getUpdates returned %d", resp.StatusCode)
	}

	var parsed getUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		s.backOff(ctx)
		return nil, fmt.Errorf("telegram: getUpdates decode: %w", err)
	}
	s.resetBackoff()

	if !parsed.OK || len(parsed.Result) == 0 {
		return nil, nil
	}

	lastID := offset
	var reply *ProviderReply
	for _, upd := range parsed.Result {
		lastID = upd.UpdateID
		if upd.Message != nil {
			text := upd.Message.Text
			var replyTo string
			if upd.Message.ReplyToMessage != nil {
				replyTo = strconv.FormatInt(upd.Message.ReplyToMessage.MessageID, 10)
			}
			answer, responseType := MapReply(text)
			reply = &ProviderReply{ReplyToMessageID: replyTo, Answer: answer, ResponseType: responseType}
			// Later updates stay unacknowledged and come back on the next poll.
			break
		}
	}
	atomic.StoreInt64(&s.nextOffset, lastID+1)
	return reply, nil
}

func (s *TelegramReplySource) backOff(ctx context.Context) {
	d := time.Duration(atomic.LoadInt64(&s.backoff)) * time.Second
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	next := d * 2
	if next > pollBackoffMax {
		next = pollBackoffMax
	}
	atomic.StoreInt64(&s.backoff, int64(next.Seconds()))
}

func (s *TelegramReplySource) resetBackoff() {
	atomic.StoreInt64(&s.backoff, int64(pollBackoffBase.Seconds()))
}
