// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to replay analyze requests submitted with the same key.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-content-review/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores the JSON result of an analysis under (userID, key).
// A live record with the same key yields ErrDuplicate; an expired one is
// replaced.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key, analysisID, resultJSON string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Key:        key,
		AnalysisID: analysisID,
		Result:     resultJSON,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND key = ? AND expires_at <= ?", userID, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes records that expired at or before now.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// IdempotencyStore adapts the package functions to the HTTP layer.
type IdempotencyStore struct {
	DB *gorm.DB
}

// Get returns the live record for (userID, key) or ErrNotFound.
func (s IdempotencyStore) Get(ctx context.Context, userID, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, userID, key, now)
}

// Exists reports whether a live record is stored for (userID, key).
func (s IdempotencyStore) Exists(ctx context.Context, userID, key string, now time.Time) (bool, error) {
	_, err := GetIdempotency(ctx, s.DB, userID, key, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Save stores resultJSON for (userID, key) for ttl.
func (s IdempotencyStore) Save(ctx context.Context, userID, key, analysisID, resultJSON string, ttl time.Duration) error {
	_, err := CreateIdempotency(ctx, s.DB, userID, key, analysisID, resultJSON, ttl)
	return err
}
