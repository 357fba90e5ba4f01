package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursekit/internal/course"
)

// RecordVersion is the project.json format written by this build.
const RecordVersion = 1

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = errors.New("project not found")

// ErrNotReady is returned for a project whose import has not finished.
var ErrNotReady = errors.New("project import not finished")

// ErrLocked is returned when another process holds the project lock.
var ErrLocked = errors.New("project is locked by another process")

// ErrInvalidRecord is returned when project.json cannot be decoded.
var ErrInvalidRecord = errors.New("invalid project record")

// Record is the persisted form of a project.
type Record struct {
	Version   int          `json:"format_version"`
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Graph     course.Graph `json:"course"`
}

// DecodeRecord parses and validates a project record.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Encode renders the record as indented JSON.
func (r *Record) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project record: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks the record header and its content graph.
func (r *Record) Validate() error {
	if r.Version <= 0 || r.Version > RecordVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrInvalidRecord, r.Version)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if err := r.Graph.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
