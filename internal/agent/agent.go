// Package agent defines the capability the turn engine consumes: given a
// prompt, produce text. Implementations wrap an LLM service or, for tests,
// a script.
package agent

import (
	"context"
	"fmt"
)

// Role names a participant in the turn-taking process.
type Role string

const (
	RoleWriter Role = "Writer"
	RoleReader Role = "Reader"
	RoleExpert Role = "Expert"
)

// Roles lists the fixed cast in speaking-priority order.
func Roles() []Role {
	return []Role{RoleWriter, RoleReader, RoleExpert}
}

// RoleNames returns the cast as plain strings for the signal parser.
func RoleNames() []string {
	roles := Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}

// Agent produces text for one role. Invoke must honor ctx cancellation and
// deadlines; the engine supplies a per-turn deadline and treats an overrun
// as fatal to the run.
type Agent interface {
	Role() Role
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Set maps every role to its agent. Construction fails if a role is missing,
// so the engine can index without checking.
type Set map[Role]Agent

// NewSet validates that each required role has an agent.
func NewSet(agents ...Agent) (Set, error) {
	set := make(Set, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("agent: nil agent in set")
		}
		if _, dup := set[a.Role()]; dup {
			return nil, fmt.Errorf("agent: duplicate agent for role %s", a.Role())
		}
		set[a.Role()] = a
	}
	for _, role := range Roles() {
		if _, ok := set[role]; !ok {
			return nil, fmt.Errorf("agent: missing agent for role %s", role)
		}
	}
	return set, nil
}
