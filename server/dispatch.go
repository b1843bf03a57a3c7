package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/goailoop/ailoop/model"
	"github.com/goailoop/ailoop/prompt"
)

// runDispatchLoop ticks every dispatchTick, dequeuing at most one message
// per active channel each tick and dispatching it. A response of
// "cancelled" re-enqueues the original message instead of dropping it.
func (s *Server) runDispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()
	log.Println("dispatch: loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("dispatch: loop stopped")
			return
		case <-ticker.C:
			for _, ch := range s.channels.ActiveChannels() {
				msg, ok := s.channels.Dequeue(ch)
				if !ok {
					continue
				}
				go s.dispatchMessage(ctx, msg)
			}
		}
	}
}

// dispatchMessage dispatches one dequeued message by content type.
func (s *Server) dispatchMessage(ctx context.Context, msg model.Message) {
	var responseType model.ResponseType
	switch msg.Content.Type {
	case model.ContentQuestion:
		responseType = s.dispatchQuestion(ctx, msg)
	case model.ContentAuthorization:
		responseType = s.dispatchAuthorization(ctx, msg)
	case model.ContentNavigate:
		responseType = s.dispatchNavigate(ctx, msg)
	case model.ContentNotification:
		fmt.Printf("\n%s [%s]: %s\n", msg.Content.Priority, msg.Channel, msg.Content.Text)
		return
	default:
		return
	}

	if responseType == model.ResponseCancelled {
		s.channels.Enqueue(msg.Channel, msg)
	}
}

// respond builds a Response message correlated to the original prompt,
// records it in history, and broadcasts it.
func (s *Server) respond(msg model.Message, content model.Content) {
	content.Type = model.ContentResponse
	resp := model.New(msg.Channel, model.SenderSystem, content)
	correlation := msg.ID
	resp.CorrelationID = &correlation
	s.history.Append(resp)
	s.broadcast.BroadcastMessage(resp)
}

// dispatchQuestion implements the question prompt: a raw-terminal read, a
// notification-sink reply, a timeout, and the global shutdown signal race
// to resolve the same pending-prompt entry; whichever wins completes it
// and the others become silent no-ops.
func (s *Server) dispatchQuestion(ctx context.Context, msg model.Message) model.ResponseType {
	timeout := msg.EffectiveTimeout(prompt.DefaultTimeout)
	replyTo, hasReply := s.broadcast.SendToSinksAndGetReplyToID(msg)
	var replyToPtr *string
	if hasReply {
		replyToPtr = &replyTo
	}

	rx, completer, _ := s.prompts.Register(msg.ID, replyToPtr, prompt.TypeQuestion)

	printQuestion(msg)

	var lineCh <-chan lineResult
	if terminalAvailable() {
		lineCh = readLineAsync(ctx)
	}

	var answer *string
	var responseType model.ResponseType
	var choiceIndex *int
	var choiceValue string

	select {
	case line := <-lineCh:
		switch {
		case line.err != nil:
			completer.Complete(prompt.Result{ResponseType: model.ResponseTimeout})
			responseType = model.ResponseTimeout
		case !line.ok:
			completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
			responseType = model.ResponseCancelled
		default:
			value, idx := resolveChoice(line.text, msg.Content.Choices)
			answer = &value
			choiceIndex = idx
			if idx != nil {
				choiceValue = value
			}
			completer.Complete(prompt.Result{Answer: &value, ResponseType: model.ResponseText, ChoiceIndex: idx, ChoiceValue: choiceValue})
			responseType = model.ResponseText
		}
	case result := <-rx:
		answer = result.Answer
		responseType = result.ResponseType
		choiceIndex = result.ChoiceIndex
		choiceValue = result.ChoiceValue
	case <-time.After(timeout):
		completer.Complete(prompt.Result{ResponseType: model.ResponseTimeout})
		responseType = model.ResponseTimeout
	case <-ctx.Done():
		completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
		responseType = model.ResponseCancelled
	}

	content := model.Content{ResponseType: responseType, ChoiceIndex: choiceIndex, ChoiceValue: choiceValue}
	if answer != nil {
		content.Answer = answer
	}
	s.respond(msg, content)

	if answer != nil {
		fmt.Printf("\nresponse sent: %s\n", *answer)
	} else {
		fmt.Printf("\nresponse sent: %s\n", responseType)
	}
	return responseType
}

func printQuestion(msg model.Message) {
	fmt.Printf("\nquestion [%s]: %s\n", msg.Channel, msg.Content.Text)
	if msg.Content.TimeoutSeconds > 0 {
		fmt.Printf("timeout: %ds\n", msg.Content.TimeoutSeconds)
	}
	for i, c := range msg.Content.Choices {
		fmt.Printf("  %d. %s\n", i+1, c)
	}
	fmt.Print("your answer (esc to skip): ")
}

// dispatchAuthorization implements the authorization prompt. Terminal input
// parsing is more permissive than the question path: empty input approves,
// and unrecognized input also approves (with a warning) rather than
// denying — a softer local default than the agent-side client's
// deny-on-timeout. A timeout here resolves to authorization_denied, not
// the generic timeout type.
func (s *Server) dispatchAuthorization(ctx context.Context, msg model.Message) model.ResponseType {
	timeout := msg.EffectiveTimeout(prompt.DefaultTimeout)
	replyTo, hasReply := s.broadcast.SendToSinksAndGetReplyToID(msg)
	var replyToPtr *string
	if hasReply {
		replyToPtr = &replyTo
	}

	rx, completer, _ := s.prompts.Register(msg.ID, replyToPtr, prompt.TypeAuthorization)

	fmt.Printf("\nauthorization request [%s]: %s\n", msg.Channel, msg.Content.Action)
	if msg.Content.TimeoutSeconds > 0 {
		fmt.Printf("timeout: %ds\n", msg.Content.TimeoutSeconds)
	}
	fmt.Print("authorize? (y/enter=yes, n=no, esc=skip): ")

	var lineCh <-chan lineResult
	if terminalAvailable() {
		lineCh = readLineAsync(ctx)
	}

	var decision model.ResponseType
	select {
	case line := <-lineCh:
		switch {
		case line.err != nil:
			completer.Complete(prompt.Result{ResponseType: model.ResponseAuthorizationDenied})
			decision = model.ResponseAuthorizationDenied
		case !line.ok:
			completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
			decision = model.ResponseCancelled
		default:
			decision = parseAuthorizationDecision(line.text)
			completer.Complete(prompt.Result{ResponseType: decision})
		}
	case result := <-rx:
		decision = result.ResponseType
	case <-time.After(timeout):
		completer.Complete(prompt.Result{ResponseType: model.ResponseAuthorizationDenied})
		decision = model.ResponseAuthorizationDenied
	case <-ctx.Done():
		completer.Complete(prompt.Result{ResponseType: model.ResponseAuthorizationDenied})
		decision = model.ResponseAuthorizationDenied
	}

	s.respond(msg, model.Content{ResponseType: decision})

	switch decision {
	case model.ResponseAuthorizationApproved:
		fmt.Println("\nauthorization GRANTED")
	case model.ResponseAuthorizationDenied:
		fmt.Println("\nauthorization DENIED")
	default:
		fmt.Printf("\nauthorization response: %s\n", decision)
	}
	return decision
}

// dispatchNavigate implements the navigate prompt: like authorization, but
// an approval launches the platform's "open URL" side effect on the server
// host rather than just recording a decision. Unlike authorization, a
// timeout here resolves to cancelled (the originating message is
// re-enqueued) rather than denied.
func (s *Server) dispatchNavigate(ctx context.Context, msg model.Message) model.ResponseType {
	rx, completer, timeout := s.prompts.Register(msg.ID, nil, prompt.TypeNavigate)

	fmt.Printf("\nnavigation request [%s]: %s\n", msg.Channel, msg.Content.URL)
	fmt.Print("open in browser? (y/enter=yes, n=no, esc=skip): ")

	var lineCh <-chan lineResult
	if terminalAvailable() {
		lineCh = readLineAsync(ctx)
	}

	var decision model.ResponseType
	select {
	case line := <-lineCh:
		switch {
		case line.err != nil:
			completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
			decision = model.ResponseCancelled
		case !line.ok:
			completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
			decision = model.ResponseCancelled
		default:
			decision = parseAuthorizationDecision(line.text)
			completer.Complete(prompt.Result{ResponseType: decision})
		}
	case result := <-rx:
		decision = result.ResponseType
	case <-time.After(timeout):
		completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
		decision = model.ResponseCancelled
	case <-ctx.Done():
		completer.Complete(prompt.Result{ResponseType: model.ResponseCancelled})
		decision = model.ResponseCancelled
	}

	s.respond(msg, model.Content{ResponseType: decision})

	if decision == model.ResponseAuthorizationApproved {
		fmt.Println("\nopening browser…")
		openURL(msg.Content.URL)
	} else {
		fmt.Println("\nbrowser not opened")
	}
	return decision
}
