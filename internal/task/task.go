// Package task defines the dependency-aware unit of work and its lifecycle.
package task

import (
	"errors"
	"fmt"
	"strings"
)

// Role labels a fixed worker specialization.
type Role string

const (
	// RoleDB covers schema and data layer work.
	RoleDB Role = "db"
	// RoleLogic covers application and business logic work.
	RoleLogic Role = "logic"
	// RoleUI covers interface and presentation work.
	RoleUI Role = "ui"
	// RoleDeploy covers release and deployment work.
	RoleDeploy Role = "deploy"
)

// DefaultRetryCeiling is the per-task retry limit before a failed validation
// becomes terminal.
const DefaultRetryCeiling = 3

// RolePriority returns roles in dispatch priority order. Deploy tasks
// conventionally depend on everything else, so they are considered last.
func RolePriority() []Role {
	return []Role{RoleDB, RoleLogic, RoleUI, RoleDeploy}
}

// ParseRole resolves a role from its string name.
func ParseRole(name string) (Role, error) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	switch Role(trimmed) {
	case RoleDB, RoleLogic, RoleUI, RoleDeploy:
		return Role(trimmed), nil
	}
	return "", fmt.Errorf("unknown role %q", name)
}

// Task is one dependency-aware unit of work assigned to a role.
type Task struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Role         Role     `json:"assigned_role"`
	Status       Status   `json:"status"`
	Dependencies []string `json:"dependencies,omitempty"`
	RetryCount   int      `json:"retry_count"`
	Feedback     string   `json:"feedback,omitempty"`
}

// New constructs a pending task, enforcing required fields.
func New(id string, description string, role Role) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, errors.New("task id is required")
	}
	if strings.TrimSpace(description) == "" {
		return Task{}, fmt.Errorf("task %s: description is required", id)
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	return Task{
		ID:          id,
		Description: description,
		Role:        role,
		Status:      StatusPending,
	}, nil
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	clone := t
	if t.Dependencies != nil {
		clone.Dependencies = append([]string(nil), t.Dependencies...)
	}
	return clone
}

// Retryable reports whether the task may return to pending after a failed
// validation instead of becoming terminally failed.
func (t Task) Retryable(ceiling int) bool {
	return t.RetryCount < ceiling
}
