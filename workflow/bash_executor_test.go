package workflow

import (
	"context"
	"testing"

	"github.com/goailoop/ailoop/model"
)

func TestBashExecutorSuccess(t *testing.T) {
	executor := NewBashExecutor()
	state := model.WorkflowState{
		Command:        "echo hello && exit 0",
		TimeoutSeconds: 10,
		Transitions:    model.Transitions{Success: "next", Failure: "failed"},
	}

	result, err := executor.Execute(context.Background(), "test-exec", state)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.ExitCode == nil || *result.ExitCode != 0 {
		t.Errorf("result = %+v", result)
	}
	if result.NextState != "next" || result.TransitionType != model.TransitionSuccess {
		t.Errorf("result = %+v", result)
	}
}

func TestBashExecutorFailure(t *testing.T) {
	executor := NewBashExecutor()
	state := model.WorkflowState{
		Command:        "exit 1",
		TimeoutSeconds: 10,
		Transitions:    model.Transitions{Success: "next", Failure: "failed"},
	}

	result, err := executor.Execute(context.Background(), "test-exec", state)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.ExitCode == nil || *result.ExitCode != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.NextState != "failed" || result.TransitionType != model.TransitionFailure {
		t.Errorf("result = %+v", result)
	}
}

func TestBashExecutorTimeout(t *testing.T) {
	executor := NewBashExecutor()
	state := model.WorkflowState{
		Command:        "sleep 10",
		TimeoutSeconds: 1,
		Transitions:    model.Transitions{Success: "next", Failure: "failed", Timeout: "timeout"},
	}

	result, err := executor.Execute(context.Background(), "test-exec", state)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Errorf("result = %+v", result)
	}
	if result.NextState != "timeout" || result.TransitionType != model.TransitionTimeout {
		t.Errorf("result = %+v", result)
	}
}

func TestBashExecutorRetriesTransientFailure(t *testing.T) {
	executor := NewBashExecutor()
	state := model.WorkflowState{
		Command:        "exit 1",
		TimeoutSeconds: 5,
		RetryPolicy:    &model.RetryPolicy{MaxAttempts: 2, InitialDelaySeconds: 1, BackoffMultiplier: 1.0},
		Transitions:    model.Transitions{Success: "next", Failure: "failed"},
	}

	result, err := executor.Execute(context.Background(), "test-exec", state)
	if err != nil {
		t.Fatal(err)
	}
	if result.RetryAttempt == nil || *result.RetryAttempt != 2 {
		t.Errorf("expected retries exhausted at attempt 2, got %+v", result)
	}
}
