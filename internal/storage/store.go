/**
 * Export record storage
 *
 * An export job is stored as one record from the moment it is accepted until
 * it is deleted. The worker and the HTTP API share the Store interface; the
 * PostgreSQL implementation is used in production and the in-memory one by
 * the offline CLI and tests.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for an ID
var ErrNotFound = errors.New("export not found")

// Status is the lifecycle state of an export job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions follow
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExportRecord is the persisted state of one export job
type ExportRecord struct {
	ID               string          `json:"id"`
	Status           Status          `json:"status"`
	ChannelID        string          `json:"channelId,omitempty"`
	Request          json.RawMessage `json:"request,omitempty"`
	MessageIDs       []string        `json:"messageIds,omitempty"`
	Images           int             `json:"images"`
	Rows             int             `json:"rows"`
	Failures         json.RawMessage `json:"failures,omitempty"`
	Filename         string          `json:"filename,omitempty"`
	CSV              []byte          `json:"-"`
	ErrorCode        string          `json:"errorCode,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Store persists export records
type Store interface {
	Get(ctx context.Context, id string) (*ExportRecord, error)
	Put(ctx context.Context, rec *ExportRecord) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*ExportRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*ExportRecord)}
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, id string) (*ExportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// Put implements Store. CreatedAt is kept from the first Put.
func (m *MemoryStore) Put(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		return errors.New("export ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := rec.clone()
	now := time.Now().UTC()
	if prev, ok := m.records[rec.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.records[rec.ID] = stored
	return nil
}

// Delete implements Store
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (r *ExportRecord) clone() *ExportRecord {
	c := *r
	c.Request = append(json.RawMessage(nil), r.Request...)
	c.Failures = append(json.RawMessage(nil), r.Failures...)
	c.MessageIDs = append([]string(nil), r.MessageIDs...)
	c.CSV = append([]byte(nil), r.CSV...)
	return &c
}
