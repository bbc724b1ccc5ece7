package crm

import (
	"context"
	"time"
)

// JobStore persists scrape job metadata. CreateJob is the only writer at
// creation time; CompleteJob/FailJob perform the single terminal write.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	CompleteJob(ctx context.Context, jobID string, result []Record, completedAt time.Time) error
	FailJob(ctx context.Context, jobID string, errText string, completedAt time.Time) error
	ListJobs(ctx context.Context, status JobStatus, limit int) ([]Job, error)
}

// Snapshot is one poll of the external scraper for a triggered batch.
type Snapshot struct {
	Ready   bool
	Records []Record
}

// ScrapeGateway wraps the third-party scraping vendor's trigger/poll contract.
type ScrapeGateway interface {
	Trigger(ctx context.Context, kind EntityKind, urls []string) (string, error)
	PollSnapshot(ctx context.Context, snapshotID string) (Snapshot, error)
}

// EntityStore is the persistence boundary for CRM rows.
type EntityStore interface {
	ListPeople(ctx context.Context, limit int) ([]Person, error)
	GetPerson(ctx context.Context, id int64) (Person, error)
	CreatePerson(ctx context.Context, p Person) (int64, error)
	UpdatePerson(ctx context.Context, p Person) error
	DeletePerson(ctx context.Context, id int64) error
	FindPersonBySlug(ctx context.Context, slug string) (Person, error)

	ListCompanies(ctx context.Context, limit int) ([]Company, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	CreateCompany(ctx context.Context, c Company) (int64, error)
	UpdateCompany(ctx context.Context, c Company) error
	DeleteCompany(ctx context.Context, id int64) error
	FindCompanyBySlug(ctx context.Context, slug string) (Company, error)
	FindCompanyByName(ctx context.Context, name string) (Company, error)

	ListPositions(ctx context.Context, personID int64) ([]Position, error)
	CreatePosition(ctx context.Context, p Position) (int64, error)
	DeletePosition(ctx context.Context, id int64) error

	ListInteractions(ctx context.Context, personID int64) ([]Interaction, error)
	CreateInteraction(ctx context.Context, i Interaction) (int64, error)
	DeleteInteraction(ctx context.Context, id int64) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
