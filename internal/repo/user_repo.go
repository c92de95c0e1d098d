// Package repo – users
//
// Repository helpers for the User model. Emails are stored normalized
// (lower-case, trimmed) by the caller; lookups match them exactly.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-content-review/internal/domain"
)

// CreateUser inserts a user with a zero usage count. A taken email yields
// ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, email string, plan domain.Plan, limit int) (*domain.User, error) {
	u := &domain.User{
		ID:         uuid.NewString(),
		Email:      email,
		Plan:       plan,
		UsageLimit: limit,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUsageCount sets the usage count of a user.
func UpdateUsageCount(ctx context.Context, db *gorm.DB, id string, count int) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("usage_count", count)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePlan sets the plan and usage limit of a user.
func UpdatePlan(ctx context.Context, db *gorm.DB, id string, plan domain.Plan, limit int) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{"plan": plan, "usage_limit": limit})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedUser inserts u unless a user with the same email exists. It reports
// whether a row was created.
func SeedUser(ctx context.Context, db *gorm.DB, u domain.User) (bool, error) {
	_, err := GetUserByEmail(ctx, db, u.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(&u).Error; err != nil {
		return false, err
	}
	return true, nil
}

// DemoUsers returns the accounts seeded for local use.
func DemoUsers(limits domain.Limits) []domain.User {
	return []domain.User{
		{Email: "demo@contentreview.ai", Plan: domain.PlanFree, UsageCount: 45, UsageLimit: limits.For(domain.PlanFree)},
		{Email: "pro@contentreview.ai", Plan: domain.PlanPro, UsageCount: 356, UsageLimit: limits.For(domain.PlanPro)},
	}
}

// UserStore adapts the package functions to the session and account
// service contracts.
type UserStore struct {
	DB *gorm.DB
}

func (s UserStore) UpdateUsageCount(ctx context.Context, userID string, count int) error {
	return UpdateUsageCount(ctx, s.DB, userID, count)
}

func (s UserStore) UpdatePlan(ctx context.Context, userID string, plan domain.Plan, limit int) error {
	return UpdatePlan(ctx, s.DB, userID, plan, limit)
}

func (UserStore) CreateUser(ctx context.Context, db *gorm.DB, email string, plan domain.Plan, limit int) (*domain.User, error) {
	return CreateUser(ctx, db, email, plan, limit)
}

func (UserStore) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return GetUser(ctx, db, id)
}

func (UserStore) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return GetUserByEmail(ctx, db, email)
}
