package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Decision actions
const (
	ActionAccepted  = "accepted"
	ActionRejected  = "rejected"
	ActionCancelled = "cancelled"
)

// DecisionLog is the audit trail entry of one moderator decision.
type DecisionLog struct {
	ID          uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	MemberID    string         `json:"member_id" gorm:"not null;index"`
	GuildID     string         `json:"guild_id" gorm:"index"`
	ModeratorID string         `json:"moderator_id" gorm:"not null"`
	Action      string         `json:"action" gorm:"not null"`
	Reason      string         `json:"reason,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// AuditLog records moderator decisions.
type AuditLog interface {
	Record(ctx context.Context, entry *DecisionLog) error
	History(ctx context.Context, memberID string) ([]DecisionLog, error)
}

// NewDecisionLog builds an entry with a fresh id and JSON metadata.
func NewDecisionLog(d Decision, action, reason string, metadata map[string]any) *DecisionLog {
	entry := &DecisionLog{
		ID:          uuid.New(),
		MemberID:    d.TargetID,
		GuildID:     d.GuildID,
		ModeratorID: d.ModeratorID,
		Action:      action,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(data)
		}
	}
	return entry
}

// GormAuditLog stores decisions in a SQL database.
type GormAuditLog struct {
	db *gorm.DB
}

// NewGormAuditLog migrates the decision table and returns the log.
func NewGormAuditLog(db *gorm.DB) (*GormAuditLog, error) {
	if err := db.AutoMigrate(&DecisionLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate decision log: %w", err)
	}
	return &GormAuditLog{db: db}, nil
}

func (l *GormAuditLog) Record(ctx context.Context, entry *DecisionLog) error {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

func (l *GormAuditLog) History(ctx context.Context, memberID string) ([]DecisionLog, error) {
	var entries []DecisionLog
	err := l.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load decision history: %w", err)
	}
	return entries, nil
}

// MemoryAuditLog keeps decisions in process memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []DecisionLog
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Record(ctx context.Context, entry *DecisionLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *MemoryAuditLog) History(ctx context.Context, memberID string) ([]DecisionLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []DecisionLog
	for _, e := range l.entries {
		if e.MemberID == memberID {
			out = append(out, e)
		}
	}
	return out, nil
}

var (
	_ AuditLog = (*GormAuditLog)(nil)
	_ AuditLog = (*MemoryAuditLog)(nil)
)
