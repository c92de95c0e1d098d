package domain

import "time"

// Idempotency records the result of an analyze request submitted with an
// Idempotency-Key, keyed by (user_id, key). A replay within the TTL returns
// the stored result without running the pipeline or consuming quota.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:1"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:2"`
	AnalysisID string    `gorm:"type:TEXT NOT NULL"`
	Result     string    `gorm:"type:TEXT NOT NULL"` // JSON encoded AnalysisResult
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
