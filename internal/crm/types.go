// Package crm defines core types shared across subsystems.
package crm

import (
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store. Processing is never
// persisted: a stored job reads as pending until a terminal write occurs.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// EntityKind distinguishes profile scrapes from company scrapes.
type EntityKind string

// Kinds of LinkedIn entity the scraper understands.
const (
	KindProfile EntityKind = "profile"
	KindCompany EntityKind = "company"
)

// ParseKind maps a request string onto an EntityKind, defaulting to profile.
func ParseKind(s string) (EntityKind, bool) {
	switch s {
	case "", string(KindProfile):
		return KindProfile, true
	case string(KindCompany):
		return KindCompany, true
	default:
		return "", false
	}
}

// MaxBatchURLs caps how many URLs a single scrape job may carry.
const MaxBatchURLs = 20

// Job is the metadata persisted for each triggered scrape batch.
type Job struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"type"`
	URLs        []string   `json:"urls"`
	SnapshotID  string     `json:"snapshot_id"`
	Status      JobStatus  `json:"status"`
	Result      []Record   `json:"result,omitempty"`
	ErrorText   string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Person is a local CRM contact row.
type Person struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Headline    string     `json:"headline,omitempty"`
	Email       string     `json:"email,omitempty"`
	LinkedinURL string     `json:"linkedin_url,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Company is a local CRM organization row.
type Company struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	LinkedinURL string     `json:"linkedin_url,omitempty"`
	Website     string     `json:"website,omitempty"`
	LogoURL     string     `json:"logo_url,omitempty"`
	Industry    string     `json:"industry,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Position links a person to a company with a role.
type Position struct {
	ID        int64      `json:"id"`
	PersonID  int64      `json:"person_id"`
	CompanyID int64      `json:"company_id"`
	Title     string     `json:"title"`
	Current   bool       `json:"current"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Interaction records a touchpoint with a person.
type Interaction struct {
	ID         int64     `json:"id"`
	PersonID   int64     `json:"person_id"`
	Kind       string    `json:"kind"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sentinel errors shared across the persistence and gateway boundaries.
// ErrGatewayUnavailable marks transport-level failures where the vendor
// never produced a response; callers must not treat those as a vendor
// verdict on the job.
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrNotFound           = errors.New("not found")
	ErrMissingCredential  = errors.New("scraper api key is not configured")
	ErrGatewayUnavailable = errors.New("scrape vendor unreachable")
)
