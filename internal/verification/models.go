package verification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"community-portal/verification-backend/pkg/workflows"
)

// Record statuses
const (
	StatusAwaitingValidation = workflows.StatusAwaitingValidation
	StatusProcessing         = workflows.StatusProcessing
	StatusAccepted           = workflows.StatusAccepted
	StatusRejected           = workflows.StatusRejected
	StatusCancelled          = workflows.StatusCancelled
)

// Timestamp is a point in time serialized as epoch milliseconds.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to millisecond precision.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: time.UnixMilli(t.UnixMilli())}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// UnmarshalJSON accepts epoch milliseconds or an RFC 3339 string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = time.UnixMilli(parsed.UnixMilli())
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}

// Record tracks one member's verification.
type Record struct {
	MemberID           string     `json:"memberId,omitempty"`
	GuildID            string     `json:"guildId,omitempty"`
	ThreadID           string     `json:"threadId,omitempty"`
	ChannelID          string     `json:"channelId,omitempty"`
	MessageID          string     `json:"messageId,omitempty"`
	Status             string     `json:"status,omitempty"`
	AwaitingValidation bool       `json:"awaitingValidation"`
	CreatedAt          *Timestamp `json:"createdAt,omitempty"`
	AcceptedAt         *Timestamp `json:"acceptedAt,omitempty"`
	AcceptedBy         string     `json:"acceptedBy,omitempty"`
	RejectedAt         *Timestamp `json:"rejectedAt,omitempty"`
	RejectedBy         string     `json:"rejectedBy,omitempty"`
	RejectedReason     string     `json:"rejectedReason,omitempty"`
	CancelledAt        *Timestamp `json:"cancelledAt,omitempty"`
	CancelledBy        string     `json:"cancelledBy,omitempty"`
	CancelledReason    string     `json:"cancelledReason,omitempty"`
}

// EffectiveStatus maps a record without status to awaiting_validation.
func (r Record) EffectiveStatus() string {
	if r.Status == "" {
		return StatusAwaitingValidation
	}
	return r.Status
}

// QuestionAnswer is one interview exchange.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Decision identifies a moderator action on a member's verification.
type Decision struct {
	GuildID     string
	ChannelID   string
	ModeratorID string
	TargetID    string
}

// Interview answer fallbacks
const (
	AnswerTimedOut  = "no answer (timed out)"
	AnswerDMsClosed = "no answer (DMs closed)"
	AnswerSendError = "error sending question"
	AnswerNone      = "no answer"
)

// DefaultQuestions is the fixed interview used when none is configured.
var DefaultQuestions = []string{
	"Hello! Could you introduce yourself in a few lines?",
	"How old are you?",
	"Where are you from (country / region)?",
	"Have you read and accepted the server rules?",
}

// RoleConfig holds role references (id, name or mention).
type RoleConfig struct {
	Unverified string `json:"unverified"`
	Verified   string `json:"verified"`
	Adult      string `json:"adult"`
	Minor      string `json:"minor"`
	Artist     string `json:"artist"`
	Verifier   string `json:"verifier"`
}

// Config drives the coordinator and the review handler.
type Config struct {
	Questions    []string
	OverrideText string
	// Destination is the review channel id or name.
	Destination          string
	NotifyRoleID         string
	Roles                RoleConfig
	AnswerTimeout        time.Duration
	JustificationTimeout time.Duration
	PromptTimeout        time.Duration
	RequestCooldown      time.Duration
}

// DefaultConfig returns production timings and the default questions.
func DefaultConfig() Config {
	return Config{
		Questions:            append([]string(nil), DefaultQuestions...),
		AnswerTimeout:        10 * time.Minute,
		JustificationTimeout: 30 * time.Minute,
		PromptTimeout:        5 * time.Minute,
		RequestCooldown:      3 * time.Minute,
	}
}
