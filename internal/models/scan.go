package models

import (
	"time"
)

// Scan status values
const (
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// ScanRecord is one recognition attempt kept in the scan history
type ScanRecord struct {
	ID        string    `json:"id"`
	Kind      InputKind `json:"kind"`
	Status    string    `json:"status"` // "completed" or "failed"
	Query     string    `json:"query,omitempty"`
	Name      string    `json:"name,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
