package workflow

import (
	"fmt"

	"github.com/goailoop/ailoop/model"
)

// ValidationError is one rejected field of a workflow definition or retry policy.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationResult accumulates errors (which make a definition unusable) and
// warnings (which don't).
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether no errors were recorded.
func (r *ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) addError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

func (r *ValidationResult) addWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// ValidateRetryPolicy enforces the bounds a retry policy must satisfy:
// max_attempts in [1,10], initial_delay_seconds in [1,300], backoff_multiplier
// >= 1.0. The 600s max-delay cap is enforced at calculation time, not here.
func ValidateRetryPolicy(policy model.RetryPolicy) *ValidationResult {
	result := &ValidationResult{}

	if policy.MaxAttempts < 1 {
		result.addError("max_attempts", "max_attempts must be at least 1")
	}
	if policy.MaxAttempts > 10 {
		result.addError("max_attempts", "max_attempts cannot exceed 10")
	}
	if policy.InitialDelaySeconds < 1 {
		result.addError("initial_delay_seconds", "initial_delay_seconds must be at least 1")
	}
	if policy.InitialDelaySeconds > 300 {
		result.addError("initial_delay_seconds", "initial_delay_seconds cannot exceed 300")
	}
	if policy.BackoffMultiplier < 1.0 {
		result.addError("backoff_multiplier", "backoff_multiplier must be at least 1.0")
	}
	if policy.ExponentialBackoff && policy.BackoffMultiplier > 3.0 {
		result.addWarning(fmt.Sprintf(
			"high backoff_multiplier (%v) with exponential backoff may reach max delay (600s) quickly",
			policy.BackoffMultiplier))
	}

	return result
}

// ValidateWorkflow checks a definition's internal consistency: the initial
// and terminal states exist, every retry policy is in bounds, every
// transition target exists, terminal states carry no outgoing transitions,
// and the state graph has no cycles or unreachable states.
func ValidateWorkflow(def model.WorkflowDefinition) *ValidationResult {
	result := &ValidationResult{}

	if def.Name == "" {
		result.addError("name", "workflow name cannot be empty")
	}

	if _, ok := def.States[def.InitialState]; !ok {
		result.addError("initial_state", fmt.Sprintf("initial state %q not found in states", def.InitialState))
	}

	for _, terminal := range def.TerminalStates {
		if _, ok := def.States[terminal]; !ok {
			result.addError("terminal_states", fmt.Sprintf("terminal state %q not found in states", terminal))
		}
	}

	for name, state := range def.States {
		if state.RetryPolicy != nil {
			sub := ValidateRetryPolicy(*state.RetryPolicy)
			for _, e := range sub.Errors {
				result.addError(fmt.Sprintf("states.%s.retry_policy.%s", name, e.Field), e.Message)
			}
			for _, w := range sub.Warnings {
				result.addWarning(fmt.Sprintf("state %q: %s", name, w))
			}
		}
	}

	if def.Defaults != nil && def.Defaults.RetryPolicy != nil {
		sub := ValidateRetryPolicy(*def.Defaults.RetryPolicy)
		for _, e := range sub.Errors {
			result.addError(fmt.Sprintf("defaults.retry_policy.%s", e.Field), e.Message)
		}
		for _, w := range sub.Warnings {
			result.addWarning(fmt.Sprintf("default retry policy: %s", w))
		}
	}

	if cycle := detectCircularDependencies(def); cycle != nil {
		result.addError("states", fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)))
	}

	for _, name := range findUnreachableStates(def) {
		result.addWarning(fmt.Sprintf("state %q is unreachable from initial state %q", name, def.InitialState))
	}

	isTerminal := func(name string) bool { return def.IsTerminal(name) }

	for terminal := range def.States {
		if !isTerminal(terminal) {
			continue
		}
		if hasTransitions(def.States[terminal].Transitions) {
			result.addError(fmt.Sprintf("states.%s.transitions", terminal),
				fmt.Sprintf("terminal state %q should not have outgoing transitions", terminal))
		}
	}

	for name, state := range def.States {
		if isTerminal(name) || state.Command == "" {
			continue
		}
		if !hasTransitions(state.Transitions) {
			result.addWarning(fmt.Sprintf("non-terminal state %q has a command but no transitions defined", name))
			continue
		}
		if state.Transitions.Success == "" {
			result.addWarning(fmt.Sprintf("state %q has a command but no success transition defined", name))
		}
		if state.Transitions.Failure == "" {
			result.addWarning(fmt.Sprintf("state %q has a command but no failure transition defined", name))
		}
	}

	for name, state := range def.States {
		for field, target := range map[string]string{
			"success":         state.Transitions.Success,
			"failure":         state.Transitions.Failure,
			"timeout":         state.Transitions.Timeout,
			"approval_denied": state.Transitions.ApprovalDenied,
		} {
			if target == "" {
				continue
			}
			if _, ok := def.States[target]; !ok {
				result.addError(fmt.Sprintf("states.%s.transitions.%s", name, field),
					fmt.Sprintf("transition target state %q not found", target))
			}
		}
	}

	return result
}

func hasTransitions(t model.Transitions) bool {
	return t.Success != "" || t.Failure != "" || t.Timeout != "" || t.ApprovalDenied != ""
}

func transitionTargets(t model.Transitions) []string {
	var out []string
	for _, s := range []string{t.Success, t.Failure, t.Timeout, t.ApprovalDenied} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// detectCircularDependencies walks the transition graph by DFS from the
// initial state. A self-loop (a state transitioning back to itself, as used
// by retry-style workflows) is explicitly allowed.
func detectCircularDependencies(def model.WorkflowDefinition) []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		visited[node] = true
		recStack[node] = true

		state, ok := def.States[node]
		if ok {
			for _, target := range transitionTargets(state.Transitions) {
				if !visited[target] {
					parent[target] = node
					if cycle := dfs(target); cycle != nil {
						return cycle
					}
				} else if recStack[target] {
					if target == node {
						continue // self-loop allowed
					}
					cycle := []string{target}
					current := node
					for current != target {
						cycle = append(cycle, current)
						p, ok := parent[current]
						if !ok {
							break
						}
						current = p
					}
					reverse(cycle)
					return cycle
				}
			}
		}

		recStack[node] = false
		return nil
	}

	return dfs(def.InitialState)
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func formatCycle(cycle []string) string {
	out := ""
	for i, s := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += s
	}
	if len(cycle) > 0 {
		out += " -> " + cycle[0]
	}
	return out
}

// findUnreachableStates walks the transition graph by BFS from the initial
// state and returns every state never reached.
func findUnreachableStates(def model.WorkflowDefinition) []string {
	reachable := map[string]bool{def.InitialState: true}
	queue := []string{def.InitialState}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		state, ok := def.States[name]
		if !ok {
			continue
		}
		for _, target := range transitionTargets(state.Transitions) {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	var out []string
	for name := range def.States {
		if !reachable[name] {
			out = append(out, name)
		}
	}
	return out
}
