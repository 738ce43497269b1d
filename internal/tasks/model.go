package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidTaskID indicates that a task identifier is empty or exceeds storage bounds.
	ErrInvalidTaskID = errors.New("tasks: invalid task id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("tasks: invalid user id")
	// ErrMissingDescription indicates an empty task description.
	ErrMissingDescription = errors.New("tasks: description required")
	// ErrMissingDate indicates an empty task date.
	ErrMissingDate = errors.New("tasks: date required")
)

// TaskID represents a validated task identifier.
type TaskID string

// NewTaskID validates raw input and returns a TaskID.
func NewTaskID(rawInput string) (TaskID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTaskID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTaskID, maxIdentifierLength)
	}
	return TaskID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TaskID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Task models a persisted per-user task row. Ownership is enforced by
// query predicate on user_id, not by a database constraint.
type Task struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index:idx_tasks_user" json:"user_id"`
	Description string    `gorm:"column:description;type:text;not null" json:"description"`
	Date        string    `gorm:"column:date;size:64;not null" json:"date"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "tasks"
}
