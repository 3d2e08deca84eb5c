// Package audit records operator actions performed through the dashboard.
package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Actions recorded in the trail
const (
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
	ActionLogout         = "logout"
	ActionServerRegister = "server_register"
	ActionServerRemove   = "server_remove"
)

// Entry is one recorded operator action
type Entry struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Actor     string    `json:"actor" gorm:"type:varchar(255);not null;index"`
	Action    string    `json:"action" gorm:"type:varchar(50);not null;index"`
	Target    string    `json:"target" gorm:"type:varchar(255)"`
	Detail    string    `json:"detail" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for Entry
func (Entry) TableName() string {
	return "audit_entries"
}

// Recorder stores audit entries
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Repository is a gorm-backed Recorder
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository on db
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record stores an entry
func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	return entries, nil
}

// Nop discards entries. It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
