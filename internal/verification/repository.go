package verification

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"community-portal/verification-backend/pkg/storage"
	"community-portal/verification-backend/pkg/workflows"
)

// Repository stores verification records keyed by member id.
type Repository interface {
	Get(memberID string) (Record, bool)
	List() []Record
	// Put overwrites the member's record.
	Put(record Record) error
	// Claim moves the record to processing. It fails with
	// ErrAlreadyProcessed when the record is terminal or already claimed.
	Claim(memberID string) error
	// Release returns a claimed record to awaiting_validation.
	Release(memberID string) error
	// Complete moves a claimed record to a terminal status after applying
	// mutate.
	Complete(memberID, status string, mutate func(*Record)) (Record, error)
	// FindByDestination returns the member whose transcript lives in the
	// given thread or message.
	FindByDestination(id string) (string, bool)
	Reset() error
}

type storeFile struct {
	Verifications map[string]Record `json:"verifications"`
}

// FileRepository keeps records in memory and persists them as one JSON
// document replaced atomically on each change. Persistence failures are
// returned but never roll back the in-memory state.
type FileRepository struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
	machine *workflows.StateMachine
	logger  *zap.Logger
}

// NewFileRepository loads path. A missing file yields an empty store; an
// unreadable one is logged and ignored.
func NewFileRepository(path string, logger *zap.Logger) *FileRepository {
	r := &FileRepository{
		path:    path,
		records: make(map[string]Record),
		machine: workflows.NewStateMachine(),
		logger:  logger,
	}
	if err := r.load(); err != nil {
		logger.Warn("Starting with an empty verification store", zap.String("path", path), zap.Error(err))
	}
	return r
}

// Path returns the backing file.
func (r *FileRepository) Path() string {
	return r.path
}

func (r *FileRepository) load() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read verification store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to decode verification store: %w", err)
	}
	for id, rec := range file.Verifications {
		rec.MemberID = id
		r.records[id] = rec
	}
	return nil
}

func (r *FileRepository) persistLocked() error {
	if r.path == "" {
		return nil
	}
	file := storeFile{Verifications: r.records}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode verification store: %w", err)
	}
	if err := storage.WriteFileAtomic(r.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist verification store: %w", err)
	}
	return nil
}

func (r *FileRepository) Get(memberID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[memberID]
	return rec, ok
}

// List returns every record ordered by member id.
func (r *FileRepository) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}

func (r *FileRepository) Put(record Record) error {
	if record.MemberID == "" {
		return fmt.Errorf("record without member id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.MemberID] = record
	return r.persistLocked()
}

func (r *FileRepository) Claim(memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.records[memberID]
	if !r.machine.CanTransition(rec.Status, StatusProcessing) {
		return fmt.Errorf("member %s is %s: %w", memberID, rec.EffectiveStatus(), ErrAlreadyProcessed)
	}
	rec.MemberID = memberID
	rec.Status = StatusProcessing
	rec.AwaitingValidation = false
	r.records[memberID] = rec
	return r.persistLocked()
}

func (r *FileRepository) Release(memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[memberID]
	if !ok || !r.machine.CanTransition(rec.Status, StatusAwaitingValidation) {
		return fmt.Errorf("release member %s: %w", memberID, ErrInvalidTransition)
	}
	rec.Status = StatusAwaitingValidation
	rec.AwaitingValidation = true
	r.records[memberID] = rec
	return r.persistLocked()
}

func (r *FileRepository) Complete(memberID, status string, mutate func(*Record)) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[memberID]
	if !ok || rec.Status != StatusProcessing || !r.machine.CanTransition(rec.Status, status) {
		return rec, fmt.Errorf("complete member %s as %s: %w", memberID, status, ErrInvalidTransition)
	}
	if mutate != nil {
		mutate(&rec)
	}
	rec.MemberID = memberID
	rec.Status = status
	rec.AwaitingValidation = false
	r.records[memberID] = rec
	return rec, r.persistLocked()
}

func (r *FileRepository) FindByDestination(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.records))
	for memberID := range r.records {
		ids = append(ids, memberID)
	}
	sort.Strings(ids)
	for _, memberID := range ids {
		rec := r.records[memberID]
		if rec.ThreadID == id || rec.MessageID == id {
			return memberID, true
		}
	}
	return "", false
}

// Reset drops every record.
func (r *FileRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]Record)
	return r.persistLocked()
}

// Backup copies the persisted store next to itself with a timestamp
// suffix and returns the copy's path.
func (r *FileRepository) Backup(now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return "", fmt.Errorf("verification store has no backing file")
	}
	if err := r.persistLocked(); err != nil {
		return "", err
	}
	dst := fmt.Sprintf("%s.bak.%d", r.path, now.UnixMilli())
	if err := storage.CopyFile(r.path, dst); err != nil {
		return "", fmt.Errorf("failed to back up verification store: %w", err)
	}
	return dst, nil
}

var _ Repository = (*FileRepository)(nil)
