package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Consultation struct {
	ID        string    `json:"id"`
	Owner     string    `json:"-"`
	Title     string    `json:"title,omitempty"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Persona   string    `json:"persona"`
	Depth     string    `json:"depth"`
	Model     string    `json:"model"`
	IsShared  bool      `json:"is_shared"`
	CreatedAt time.Time `json:"created_at"`
}

type SharedConsultation struct {
	ShareToken     string    `json:"share_token"`
	ConsultationID string    `json:"consultation_id"`
	Owner          string    `json:"-"`
	SharedWith     string    `json:"shared_with,omitempty"` // JSON array stored as text
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// DataSource kinds.
const (
	SourceKindText     = "text"
	SourceKindURL      = "url"
	SourceKindPDF      = "pdf"
	SourceKindProvider = "provider"
)

// DataSource statuses.
const (
	SourceStatusPending = "pending"
	SourceStatusActive  = "active"
	SourceStatusError   = "error"
)

type DataSource struct {
	ID           string    `json:"id"`
	Owner        string    `json:"-"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	URL          string    `json:"url,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	APIKey       string    `json:"-"`
	Content      string    `json:"-"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Sentiment    string    `json:"sentiment,omitempty"` // JSON report stored as text
	LastAnalysis time.Time `json:"last_analysis,omitzero"`
	SyncCount    int       `json:"sync_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Job types processed by the ingest worker.
const (
	JobSourceFetch       = "source_fetch"
	JobSentimentAnalysis = "sentiment_analysis"
)
