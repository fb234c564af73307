// Package store keeps a history of diagnostic reports in SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tonyjoanes/gopher-doctor/internal/report"
)

// ErrNotFound is returned by Get for an unknown report ID.
var ErrNotFound = errors.New("report not found")

// DefaultListLimit applies when List is called without a positive limit.
const DefaultListLimit = 20

// Record is one stored report. Body holds the JSON-encoded report; the other
// columns are denormalized from it for listing.
type Record struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	Namespace  string    `json:"namespace" gorm:"index"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
	Summary    string    `json:"summary"`
	Critical   int       `json:"critical"`
	Warning    int       `json:"warning"`
	NodeStatus string    `json:"nodeStatus"`
	Body       []byte    `json:"-"`
}

// TableName keeps the table name stable regardless of the struct name.
func (Record) TableName() string {
	return "reports"
}

// Report decodes the stored report.
func (r *Record) Report() (report.DiagnosticReport, error) {
	var out report.DiagnosticReport
	if err := json.Unmarshal(r.Body, &out); err != nil {
		return out, fmt.Errorf("decoding report %s: %w", r.ID, err)
	}
	return out, nil
}

// Store handles database operations for report history
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening report store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating report store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save stores a report under a new ID.
func (s *Store) Save(ctx context.Context, r report.DiagnosticReport) (*Record, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	// timestamps are stored as text, so keep them in one zone for ordering
	created := r.Timestamp.UTC()
	if r.Timestamp.IsZero() {
		created = time.Now().UTC()
	}
	critical, warning := r.Counts()

	rec := &Record{
		ID:         uuid.NewString(),
		Namespace:  r.Namespace,
		CreatedAt:  created,
		Summary:    r.Summary,
		Critical:   critical,
		Warning:    warning,
		NodeStatus: r.NodeStatus,
		Body:       body,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}
	return rec, nil
}

// Get returns the record with the given ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", id, err)
	}
	return &rec, nil
}

// List returns the newest records first. An empty namespace lists all
// namespaces.
func (s *Store) List(ctx context.Context, namespace string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := s.db.WithContext(ctx).Omit("body").Order("created_at DESC").Limit(limit)
	if namespace != "" {
		q = q.Where("namespace = ?", namespace)
	}
	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return recs, nil
}

// Prune deletes records older than olderThan and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning reports: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
