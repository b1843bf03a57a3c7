package workflow

import (
	"strings"
	"testing"

	"github.com/goailoop/ailoop/model"
)

func containsMsg(msgs []string, needle string) bool {
	for _, m := range msgs {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}

func containsErr(errs []ValidationError, needle string) bool {
	for _, e := range errs {
		if strings.Contains(e.Message, needle) {
			return true
		}
	}
	return false
}

func TestValidateRetryPolicyValid(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 5, ExponentialBackoff: true, BackoffMultiplier: 2.0}
	r := ValidateRetryPolicy(p)
	if !r.IsValid() {
		t.Errorf("expected valid, got errors %+v", r.Errors)
	}
}

func TestValidateRetryPolicyMaxAttemptsTooLow(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 0, InitialDelaySeconds: 5, BackoffMultiplier: 1.0}
	r := ValidateRetryPolicy(p)
	if r.IsValid() || !containsErr(r.Errors, "at least 1") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateRetryPolicyMaxAttemptsTooHigh(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 15, InitialDelaySeconds: 5, BackoffMultiplier: 1.0}
	r := ValidateRetryPolicy(p)
	if r.IsValid() || !containsErr(r.Errors, "cannot exceed 10") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateRetryPolicyDelayTooLow(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 0, BackoffMultiplier: 1.0}
	r := ValidateRetryPolicy(p)
	if r.IsValid() || !containsErr(r.Errors, "at least 1") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateRetryPolicyDelayTooHigh(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 500, BackoffMultiplier: 1.0}
	r := ValidateRetryPolicy(p)
	if r.IsValid() || !containsErr(r.Errors, "cannot exceed 300") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateRetryPolicyMultiplierTooLow(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 5, ExponentialBackoff: true, BackoffMultiplier: 0.5}
	r := ValidateRetryPolicy(p)
	if r.IsValid() || !containsErr(r.Errors, "at least 1.0") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateRetryPolicyHighMultiplierWarning(t *testing.T) {
	p := model.RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 5, ExponentialBackoff: true, BackoffMultiplier: 5.0}
	r := ValidateRetryPolicy(p)
	if !r.IsValid() {
		t.Errorf("expected valid-with-warnings, got errors %+v", r.Errors)
	}
	if !containsMsg(r.Warnings, "High backoff_multiplier") && !containsMsg(r.Warnings, "high backoff_multiplier") {
		t.Errorf("warnings = %+v", r.Warnings)
	}
}

func simpleDefinition() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		Name:           "demo",
		InitialState:   "start",
		TerminalStates: []string{"completed", "failed"},
		States: map[string]model.WorkflowState{
			"start": {
				Command:     "echo hi",
				Transitions: model.Transitions{Success: "completed", Failure: "failed"},
			},
			"completed": {},
			"failed":    {},
		},
	}
}

func TestValidateWorkflowValid(t *testing.T) {
	r := ValidateWorkflow(simpleDefinition())
	if !r.IsValid() {
		t.Errorf("expected valid, got errors %+v", r.Errors)
	}
}

func TestValidateWorkflowMissingInitialState(t *testing.T) {
	def := simpleDefinition()
	def.InitialState = "nope"
	r := ValidateWorkflow(def)
	if r.IsValid() || !containsErr(r.Errors, "not found in states") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateWorkflowDetectsCycle(t *testing.T) {
	def := model.WorkflowDefinition{
		Name:           "cyclic",
		InitialState:   "a",
		TerminalStates: []string{"done"},
		States: map[string]model.WorkflowState{
			"a":    {Command: "x", Transitions: model.Transitions{Success: "b", Failure: "done"}},
			"b":    {Command: "x", Transitions: model.Transitions{Success: "a", Failure: "done"}},
			"done": {},
		},
	}
	r := ValidateWorkflow(def)
	if r.IsValid() || !containsErr(r.Errors, "circular dependency") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateWorkflowUnreachableState(t *testing.T) {
	def := simpleDefinition()
	def.States["orphan"] = model.WorkflowState{}
	r := ValidateWorkflow(def)
	if !containsMsg(r.Warnings, "unreachable") {
		t.Errorf("warnings = %+v", r.Warnings)
	}
}

func TestValidateWorkflowTerminalWithTransitions(t *testing.T) {
	def := simpleDefinition()
	completed := def.States["completed"]
	completed.Transitions = model.Transitions{Success: "failed"}
	def.States["completed"] = completed
	r := ValidateWorkflow(def)
	if r.IsValid() || !containsErr(r.Errors, "should not have outgoing transitions") {
		t.Errorf("errors = %+v", r.Errors)
	}
}

func TestValidateWorkflowUnknownTransitionTarget(t *testing.T) {
	def := simpleDefinition()
	start := def.States["start"]
	start.Transitions.Success = "missing"
	def.States["start"] = start
	r := ValidateWorkflow(def)
	if r.IsValid() || !containsErr(r.Errors, "not found") {
		t.Errorf("errors = %+v", r.Errors)
	}
}
