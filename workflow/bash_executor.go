package workflow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goailoop/ailoop/model"
)

const (
	defaultStateTimeout = 300 * time.Second
	maxRetryDelay       = 600 * time.Second
)

// OutputSink receives one captured output line as a state command runs.
// BashExecutor calls it from the goroutines reading stdout/stderr, so
// implementations must be safe for concurrent use.
type OutputSink interface {
	PushLine(executionID, stateName, stream string, line []byte)
}

// BashExecutor runs a workflow state's command via "bash -c", honoring its
// timeout and retry policy.
type BashExecutor struct {
	Sink OutputSink
}

// NewBashExecutor returns an executor with no output sink attached.
func NewBashExecutor() *BashExecutor {
	return &BashExecutor{}
}

// Execute implements Executor.
func (b *BashExecutor) Execute(ctx context.Context, executionID string, state model.WorkflowState) (model.ExecutionResult, error) {
	return b.executeWithRetry(ctx, executionID, state)
}

func determineNextState(state model.WorkflowState, success, timedOut bool) (string, bool) {
	switch {
	case timedOut:
		if state.Transitions.Timeout == "" {
			return "", false
		}
		return state.Transitions.Timeout, true
	case success:
		if state.Transitions.Success == "" {
			return "", false
		}
		return state.Transitions.Success, true
	default:
		if state.Transitions.Failure == "" {
			return "", false
		}
		return state.Transitions.Failure, true
	}
}

// isTransientFailure classifies exit codes 1-10 and SIGTERM (143) as
// transient (worth retrying); anything else is treated as permanent.
func isTransientFailure(exitCode *int) bool {
	if exitCode == nil {
		return false
	}
	code := *exitCode
	return (code >= 1 && code <= 10) || code == 143
}

func calculateRetryDelay(attempt, initialDelaySeconds int, exponential bool, multiplier float64) time.Duration {
	if !exponential {
		return time.Duration(initialDelaySeconds) * time.Second
	}
	delay := float64(initialDelaySeconds) * math.Pow(multiplier, float64(attempt))
	if delay > maxRetryDelay.Seconds() {
		delay = maxRetryDelay.Seconds()
	}
	return time.Duration(delay) * time.Second
}

func (b *BashExecutor) executeWithRetry(ctx context.Context, executionID string, state model.WorkflowState) (model.ExecutionResult, error) {
	maxAttempts := 1
	if state.RetryPolicy != nil {
		maxAttempts = state.RetryPolicy.MaxAttempts
	}

	var last model.ExecutionResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := b.executeOnce(ctx, executionID, state)
		if err != nil {
			return model.ExecutionResult{}, err
		}

		if result.Success {
			if attempt > 0 {
				n := attempt + 1
				result.RetryAttempt = &n
			}
			return result, nil
		}

		if !isTransientFailure(result.ExitCode) {
			n := attempt + 1
			result.RetryAttempt = &n
			result.ErrorMessage = fmt.Sprintf("Permanent failure (exit code %v)", exitCodeString(result.ExitCode))
			return result, nil
		}

		last = result
		if attempt+1 >= maxAttempts {
			break
		}

		if state.RetryPolicy != nil {
			delay := calculateRetryDelay(attempt, state.RetryPolicy.InitialDelaySeconds, state.RetryPolicy.ExponentialBackoff, state.RetryPolicy.BackoffMultiplier)
			log.Printf("workflow: retrying state %q after %s (attempt %d/%d)", state.Command, delay, attempt+1, maxAttempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.ExecutionResult{}, ctx.Err()
			}
		}
	}

	n := maxAttempts
	last.RetryAttempt = &n
	last.ErrorMessage = fmt.Sprintf("retry exhausted after %d attempts", maxAttempts)
	return last, nil
}

func exitCodeString(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *code)
}

func (b *BashExecutor) executeOnce(ctx context.Context, executionID string, state model.WorkflowState) (model.ExecutionResult, error) {
	start := time.Now()

	if state.Command == "" {
		return model.ExecutionResult{}, fmt.Errorf("workflow: state has no command to execute")
	}

	timeoutSeconds := state.TimeoutSeconds
	timeoutDuration := defaultStateTimeout
	if timeoutSeconds > 0 {
		timeoutDuration = time.Duration(timeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeoutDuration)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", state.Command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("workflow: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("workflow: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("workflow: spawn bash process: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error { b.drain(executionID, state.Command, "stdout", stdout); return nil })
	g.Go(func() error { b.drain(executionID, state.Command, "stderr", stderr); return nil })
	_ = g.Wait()

	waitErr := cmd.Wait()
	durationMS := time.Since(start).Milliseconds()

	timedOut := runCtx.Err() == context.DeadlineExceeded

	if timedOut {
		next, ok := determineNextState(state, false, true)
		if !ok {
			return model.ExecutionResult{}, fmt.Errorf("workflow: failed to determine next state after timeout")
		}
		return model.ExecutionResult{
			Success:        false,
			DurationMS:     durationMS,
			NextState:      next,
			TransitionType: model.TransitionTimeout,
			ErrorMessage:   fmt.Sprintf("command timed out after %d seconds", int(timeoutDuration.Seconds())),
		}, nil
	}

	success := waitErr == nil
	var exitCode *int
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		exitCode = &code
	} else if success {
		code := 0
		exitCode = &code
	} else if waitErr != nil {
		return model.ExecutionResult{}, fmt.Errorf("workflow: wait for process: %w", waitErr)
	}

	next, ok := determineNextState(state, success, false)
	if !ok {
		return model.ExecutionResult{}, fmt.Errorf("workflow: failed to determine next state")
	}

	transitionType := model.TransitionFailure
	var errMsg string
	if success {
		transitionType = model.TransitionSuccess
	} else {
		errMsg = fmt.Sprintf("command failed with exit code %s", exitCodeString(exitCode))
	}

	return model.ExecutionResult{
		Success:        success,
		ExitCode:       exitCode,
		DurationMS:     durationMS,
		NextState:      next,
		TransitionType: transitionType,
		ErrorMessage:   errMsg,
	}, nil
}

func (b *BashExecutor) drain(executionID, stateName, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if b.Sink != nil {
			cp := append([]byte(nil), line...)
			b.Sink.PushLine(executionID, stateName, stream, cp)
		} else {
			log.Printf("workflow: %s[%s]: %s", stream, executionID, line)
		}
	}
}
