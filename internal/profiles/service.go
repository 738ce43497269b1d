package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskmindhq/taskmind/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("profiles: invalid identity")

// ServiceConfig describes the dependencies required for profile mirroring.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service mirrors identity-provider claims into the profiles table.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("profiles: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Sync upserts the profile row keyed by the caller's uid. Last write wins:
// a second sync with the same uid replaces email, full name and avatar.
func (s *Service) Sync(ctx context.Context, claims auth.FirebaseClaims) (Profile, error) {
	uid := normalize(claims.UID)
	if uid == "" {
		return Profile{}, ErrInvalidIdentity
	}

	profile := Profile{
		ID:        uid,
		Email:     normalize(claims.Email),
		FullName:  normalize(claims.Name),
		AvatarURL: normalize(claims.Picture),
		UpdatedAt: s.now(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "full_name", "avatar_url", "updated_at"}),
		}).
		Create(&profile).Error
	if err != nil {
		s.logger.Error("profile upsert failed", zap.String("uid", uid), zap.Error(err))
		return Profile{}, err
	}

	var stored Profile
	if err := s.db.WithContext(ctx).Where("id = ?", uid).Take(&stored).Error; err != nil {
		return Profile{}, err
	}
	return stored, nil
}
