// Package importer reconciles scraped vendor records against existing CRM
// rows, deduplicating by canonical LinkedIn slug.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/metrics"
)

// Per-record outcome statuses. Batch imports always report per-record
// results; partial success is the expected case.
const (
	StatusSaved   = "saved"
	StatusExists  = "exists"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Outcome reports what happened to one scraped record.
type Outcome struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	ID     int64  `json:"id,omitempty"`
}

// Summary aggregates outcomes for user-facing reporting.
type Summary struct {
	Saved    int       `json:"saved"`
	Exists   int       `json:"exists"`
	Skipped  int       `json:"skipped"`
	Outcomes []Outcome `json:"outcomes"`
}

// Summarize rolls outcomes up into counts.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSaved:
			s.Saved++
		case StatusExists:
			s.Exists++
		default:
			s.Skipped++
		}
	}
	return s
}

// String renders a short human-readable report, e.g. "2 of 5 imported,
// 1 already known, 2 skipped".
func (s Summary) String() string {
	return fmt.Sprintf("%d of %d imported, %d already known, %d skipped",
		s.Saved, len(s.Outcomes), s.Exists, s.Skipped)
}

// Engine performs the reconciliation.
type Engine struct {
	store  crm.EntityStore
	clock  crm.Clock
	logger *zap.Logger
}

// New constructs an Engine.
func New(store crm.EntityStore, clock crm.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, clock: clock, logger: logger}
}

// Import dispatches a batch of records by kind. Records are processed
// independently; one record's failure never aborts the rest.
func (e *Engine) Import(ctx context.Context, kind crm.EntityKind, records []crm.Record) []Outcome {
	if kind == crm.KindCompany {
		return e.ImportCompanies(ctx, records)
	}
	return e.ImportProfiles(ctx, records)
}

// ImportCompanies reconciles scraped company records. A record whose slug
// matches an existing company back-fills that row's missing logo/website
// without overwriting populated fields; otherwise a new company is inserted
// under the canonical URL.
func (e *Engine) ImportCompanies(ctx context.Context, records []crm.Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for _, rec := range records {
		outcome := e.importCompany(ctx, rec)
		metrics.ObserveImportOutcome(string(crm.KindCompany), outcome.Status)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *Engine) importCompany(ctx context.Context, rec crm.Record) Outcome {
	if ok, reason := rec.Valid(); !ok {
		return Outcome{Name: rec.NameOf(), Status: StatusSkipped, Reason: reason}
	}
	name := rec.NameOf()
	slug := crm.SlugOf(crm.KindCompany, rec.URLOf())

	if slug != "" {
		existing, err := e.store.FindCompanyBySlug(ctx, slug)
		switch {
		case err == nil:
			if err := e.backfillCompany(ctx, existing, rec); err != nil {
				return Outcome{Name: name, Status: StatusError, Reason: err.Error(), ID: existing.ID}
			}
			return Outcome{Name: name, Status: StatusExists, ID: existing.ID}
		case !errors.Is(err, crm.ErrNotFound):
			return Outcome{Name: name, Status: StatusError, Reason: err.Error()}
		}
	}

	id, err := e.store.CreateCompany(ctx, crm.Company{
		Name:        name,
		LinkedinURL: crm.CanonicalURL(crm.KindCompany, rec.URLOf()),
		Website:     rec.WebsiteOf(),
		LogoURL:     rec.LogoOf(),
		Industry:    rec.IndustryOf(),
		CreatedAt:   e.clock.Now(),
	})
	if err != nil {
		return Outcome{Name: name, Status: StatusError, Reason: err.Error()}
	}
	return Outcome{Name: name, Status: StatusSaved, ID: id}
}

func (e *Engine) backfillCompany(ctx context.Context, existing crm.Company, rec crm.Record) error {
	changed := false
	if existing.LogoURL == "" && rec.LogoOf() != "" {
		existing.LogoURL = rec.LogoOf()
		changed = true
	}
	if existing.Website == "" && rec.WebsiteOf() != "" {
		existing.Website = rec.WebsiteOf()
		changed = true
	}
	if !changed {
		return nil
	}
	if err := e.store.UpdateCompany(ctx, existing); err != nil {
		return fmt.Errorf("backfill company %d: %w", existing.ID, err)
	}
	return nil
}

// ImportProfiles reconciles scraped profile records, creating or matching
// the person and then deriving Position rows from the profile's experience
// entries and reported current company.
func (e *Engine) ImportProfiles(ctx context.Context, records []crm.Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for _, rec := range records {
		outcome := e.importProfile(ctx, rec)
		metrics.ObserveImportOutcome(string(crm.KindProfile), outcome.Status)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *Engine) importProfile(ctx context.Context, rec crm.Record) Outcome {
	if ok, reason := rec.Valid(); !ok {
		return Outcome{Name: rec.NameOf(), Status: StatusSkipped, Reason: reason}
	}
	name := rec.NameOf()
	slug := crm.SlugOf(crm.KindProfile, rec.URLOf())

	if slug != "" {
		existing, err := e.store.FindPersonBySlug(ctx, slug)
		switch {
		case err == nil:
			if err := e.backfillPerson(ctx, existing, rec); err != nil {
				return Outcome{Name: name, Status: StatusError, Reason: err.Error(), ID: existing.ID}
			}
			return Outcome{Name: name, Status: StatusExists, ID: existing.ID}
		case !errors.Is(err, crm.ErrNotFound):
			return Outcome{Name: name, Status: StatusError, Reason: err.Error()}
		}
	}

	personID, err := e.store.CreatePerson(ctx, crm.Person{
		Name:        name,
		Headline:    rec.HeadlineOf(),
		LinkedinURL: crm.CanonicalURL(crm.KindProfile, rec.URLOf()),
		AvatarURL:   rec.LogoOf(),
		CreatedAt:   e.clock.Now(),
	})
	if err != nil {
		return Outcome{Name: name, Status: StatusError, Reason: err.Error()}
	}

	e.createPositions(ctx, personID, rec)
	return Outcome{Name: name, Status: StatusSaved, ID: personID}
}

func (e *Engine) backfillPerson(ctx context.Context, existing crm.Person, rec crm.Record) error {
	changed := false
	if existing.AvatarURL == "" && rec.LogoOf() != "" {
		existing.AvatarURL = rec.LogoOf()
		changed = true
	}
	if existing.Headline == "" && rec.HeadlineOf() != "" {
		existing.Headline = rec.HeadlineOf()
		changed = true
	}
	if !changed {
		return nil
	}
	if err := e.store.UpdatePerson(ctx, existing); err != nil {
		return fmt.Errorf("backfill person %d: %w", existing.ID, err)
	}
	return nil
}

// createPositions turns the first usable experience entry plus a
// non-duplicate current company into Position rows. Position failures are
// logged, not surfaced: the person row is already saved and partial data
// beats none.
func (e *Engine) createPositions(ctx context.Context, personID int64, rec crm.Record) {
	type candidate struct {
		title   string
		company string
		current bool
	}
	var candidates []candidate

	if exp := rec.ExperienceOf(); len(exp) > 0 {
		candidates = append(candidates, candidate{title: exp[0].Title, company: exp[0].Company})
	}
	if current := rec.CurrentCompanyOf(); current != "" {
		dup := len(candidates) > 0 && strings.EqualFold(candidates[0].company, current)
		if dup {
			candidates[0].current = true
		} else {
			candidates = append(candidates, candidate{title: rec.HeadlineOf(), company: current, current: true})
		}
	} else if len(candidates) > 0 {
		candidates[0].current = true
	}

	for _, cand := range candidates {
		companyID, err := e.resolveCompany(ctx, cand.company)
		if err != nil {
			e.logger.Warn("resolve employer failed",
				zap.Int64("person_id", personID),
				zap.String("company", cand.company),
				zap.Error(err),
			)
			continue
		}
		if _, err := e.store.CreatePosition(ctx, crm.Position{
			PersonID:  personID,
			CompanyID: companyID,
			Title:     cand.title,
			Current:   cand.current,
			CreatedAt: e.clock.Now(),
		}); err != nil {
			e.logger.Warn("create position failed",
				zap.Int64("person_id", personID),
				zap.Int64("company_id", companyID),
				zap.Error(err),
			)
		}
	}
}

// resolveCompany associates an employer name with a known company. With no
// URL available here the match falls back to case-insensitive substring
// containment, a known precision tradeoff for short names. Unknown
// employers get a bare company row.
func (e *Engine) resolveCompany(ctx context.Context, name string) (int64, error) {
	existing, err := e.store.FindCompanyByName(ctx, name)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, crm.ErrNotFound) {
		return 0, err
	}
	return e.store.CreateCompany(ctx, crm.Company{
		Name:      name,
		CreatedAt: e.clock.Now(),
	})
}
