package agent

import (
	"context"
	"fmt"
)

// Mock is a scripted agent for tests and offline runs. Each Invoke returns
// the next queued response; when the script runs out it repeats the final
// entry so loops terminate on budget rather than panicking.
type Mock struct {
	role      Role
	script    []string
	calls     int
	invokeErr error
}

// NewMock builds a scripted agent.
func NewMock(role Role, script ...string) *Mock {
	return &Mock{role: role, script: script}
}

// FailWith makes every subsequent Invoke return err.
func (m *Mock) FailWith(err error) *Mock {
	m.invokeErr = err
	return m
}

// Role returns the scripted role.
func (m *Mock) Role() Role {
	return m.role
}

// Calls reports how many times the agent was invoked.
func (m *Mock) Calls() int {
	return m.calls
}

// Invoke pops the next scripted response.
func (m *Mock) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.invokeErr != nil {
		return "", m.invokeErr
	}
	if len(m.script) == 0 {
		return "", fmt.Errorf("agent: mock %s has no scripted responses", m.role)
	}
	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++
	return m.script[idx], nil
}
