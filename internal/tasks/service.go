package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "tasks.service.new"
	opListTasks  = "tasks.list"
	opCreateTask = "tasks.create"
	opDeleteTask = "tasks.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies required by the task service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues identifiers for newly created tasks.
type IDProvider interface {
	NewID() (string, error)
}

// Service implements the per-user task list over the relational store.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns every task owned by the given user, oldest first.
func (s *Service) List(ctx context.Context, userID UserID) ([]Task, error) {
	rows := make([]Task, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		s.logError(opListTasks, "select_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListTasks, "select_failed", err)
	}
	return rows, nil
}

// Create inserts a new task owned by the given user and returns the stored row.
func (s *Service) Create(ctx context.Context, userID UserID, description, date string) (Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Task{}, newServiceError(opCreateTask, "missing_description", ErrMissingDescription)
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return Task{}, newServiceError(opCreateTask, "missing_date", ErrMissingDate)
	}

	taskID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateTask, "id_generation_failed", err)
		return Task{}, newServiceError(opCreateTask, "id_generation_failed", err)
	}

	task := Task{
		ID:          taskID,
		UserID:      userID.String(),
		Description: description,
		Date:        date,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		s.logError(opCreateTask, "insert_failed", err, zap.String("user_id", userID.String()))
		return Task{}, newServiceError(opCreateTask, "insert_failed", err)
	}
	return task, nil
}

// Delete removes the task matching both id and owner. Deleting a row that
// does not exist, or that belongs to another user, succeeds without effect.
func (s *Service) Delete(ctx context.Context, userID UserID, taskID TaskID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID.String(), userID.String()).
		Delete(&Task{}).Error
	if err != nil {
		s.logError(opDeleteTask, "delete_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("task_id", taskID.String()))
		return newServiceError(opDeleteTask, "delete_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logFields := append([]zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}, fields...)
	s.logger.Error("task service operation failed", logFields...)
}
