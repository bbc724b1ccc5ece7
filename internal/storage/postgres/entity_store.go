package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tbakker/linkcrm/internal/crm"
)

// EntityStore persists CRM rows (people, companies, positions, interactions).
type EntityStore struct {
	pool Pool
}

// NewEntityStore constructs an EntityStore over an existing pool.
func NewEntityStore(pool Pool) (*EntityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EntityStore{pool: pool}, nil
}

const personColumns = "id, name, headline, email, linkedin_url, avatar_url, notes, created_at, updated_at"

// ListPeople returns up to limit people, newest-first.
func (s *EntityStore) ListPeople(ctx context.Context, limit int) ([]crm.Person, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM people ORDER BY created_at DESC LIMIT $1", personColumns)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()
	var out []crm.Person
	for rows.Next() {
		p, err := scanPerson(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return out, nil
}

// GetPerson fetches one person by id.
func (s *EntityStore) GetPerson(ctx context.Context, id int64) (crm.Person, error) {
	query := fmt.Sprintf("SELECT %s FROM people WHERE id = $1", personColumns)
	p, err := scanPerson(s.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return crm.Person{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.Person{}, fmt.Errorf("select person: %w", err)
	}
	return p, nil
}

// CreatePerson inserts a person and returns the assigned id.
func (s *EntityStore) CreatePerson(ctx context.Context, p crm.Person) (int64, error) {
	query := `
INSERT INTO people (name, headline, email, linkedin_url, avatar_url, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	var id int64
	if err := s.pool.QueryRow(ctx, query,
		p.Name, p.Headline, p.Email, p.LinkedinURL, p.AvatarURL, p.Notes, p.CreatedAt,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	return id, nil
}

// UpdatePerson overwrites a person row.
func (s *EntityStore) UpdatePerson(ctx context.Context, p crm.Person) error {
	query := `
UPDATE people
SET name = $2, headline = $3, email = $4, linkedin_url = $5, avatar_url = $6, notes = $7, updated_at = NOW()
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, p.Headline, p.Email, p.LinkedinURL, p.AvatarURL, p.Notes,
	)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// DeletePerson removes a person row.
func (s *EntityStore) DeletePerson(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM people WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// FindPersonBySlug returns the person whose stored linkedin_url canonicalizes
// to slug. Candidate rows are narrowed in SQL, then confirmed in Go so legacy
// non-canonical URLs still match.
func (s *EntityStore) FindPersonBySlug(ctx context.Context, slug string) (crm.Person, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM people WHERE linkedin_url ILIKE '%%' || $1 || '%%'", personColumns)
	rows, err := s.pool.Query(ctx, query, slug)
	if err != nil {
		return crm.Person{}, fmt.Errorf("find person by slug: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPerson(rows.Scan)
		if err != nil {
			return crm.Person{}, fmt.Errorf("scan person: %w", err)
		}
		if crm.SlugOf(crm.KindProfile, p.LinkedinURL) == slug {
			return p, nil
		}
	}
	if err := rows.Err(); err != nil {
		return crm.Person{}, fmt.Errorf("iterate people: %w", err)
	}
	return crm.Person{}, crm.ErrNotFound
}

const companyColumns = "id, name, linkedin_url, website, logo_url, industry, notes, created_at, updated_at"

// ListCompanies returns up to limit companies, newest-first.
func (s *EntityStore) ListCompanies(ctx context.Context, limit int) ([]crm.Company, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM companies ORDER BY created_at DESC LIMIT $1", companyColumns)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	var out []crm.Company
	for rows.Next() {
		c, err := scanCompany(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return out, nil
}

// GetCompany fetches one company by id.
func (s *EntityStore) GetCompany(ctx context.Context, id int64) (crm.Company, error) {
	query := fmt.Sprintf("SELECT %s FROM companies WHERE id = $1", companyColumns)
	c, err := scanCompany(s.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return crm.Company{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.Company{}, fmt.Errorf("select company: %w", err)
	}
	return c, nil
}

// CreateCompany inserts a company and returns the assigned id.
func (s *EntityStore) CreateCompany(ctx context.Context, c crm.Company) (int64, error) {
	query := `
INSERT INTO companies (name, linkedin_url, website, logo_url, industry, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	var id int64
	if err := s.pool.QueryRow(ctx, query,
		c.Name, c.LinkedinURL, c.Website, c.LogoURL, c.Industry, c.Notes, c.CreatedAt,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert company: %w", err)
	}
	return id, nil
}

// UpdateCompany overwrites a company row.
func (s *EntityStore) UpdateCompany(ctx context.Context, c crm.Company) error {
	query := `
UPDATE companies
SET name = $2, linkedin_url = $3, website = $4, logo_url = $5, industry = $6, notes = $7, updated_at = NOW()
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		c.ID, c.Name, c.LinkedinURL, c.Website, c.LogoURL, c.Industry, c.Notes,
	)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// DeleteCompany removes a company row.
func (s *EntityStore) DeleteCompany(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM companies WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// FindCompanyBySlug returns the company whose stored linkedin_url
// canonicalizes to slug.
func (s *EntityStore) FindCompanyBySlug(ctx context.Context, slug string) (crm.Company, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM companies WHERE linkedin_url ILIKE '%%' || $1 || '%%'", companyColumns)
	rows, err := s.pool.Query(ctx, query, slug)
	if err != nil {
		return crm.Company{}, fmt.Errorf("find company by slug: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanCompany(rows.Scan)
		if err != nil {
			return crm.Company{}, fmt.Errorf("scan company: %w", err)
		}
		if crm.SlugOf(crm.KindCompany, c.LinkedinURL) == slug {
			return c, nil
		}
	}
	if err := rows.Err(); err != nil {
		return crm.Company{}, fmt.Errorf("iterate companies: %w", err)
	}
	return crm.Company{}, crm.ErrNotFound
}

// FindCompanyByName returns the first company matching name by
// case-insensitive substring containment in either direction. Known
// precision tradeoff for short names; kept as the secondary heuristic
// behind URL matching.
func (s *EntityStore) FindCompanyByName(ctx context.Context, name string) (crm.Company, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM companies WHERE name ILIKE '%%' || $1 || '%%' OR $1 ILIKE '%%' || name || '%%' ORDER BY id LIMIT 1",
		companyColumns)
	c, err := scanCompany(s.pool.QueryRow(ctx, query, name).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return crm.Company{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.Company{}, fmt.Errorf("find company by name: %w", err)
	}
	return c, nil
}

// ListPositions returns the positions held by a person.
func (s *EntityStore) ListPositions(ctx context.Context, personID int64) ([]crm.Position, error) {
	query := `
SELECT id, person_id, company_id, title, current, started_at, ended_at, created_at
FROM positions
WHERE person_id = $1
ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, personID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()
	var out []crm.Position
	for rows.Next() {
		var p crm.Position
		if err := rows.Scan(
			&p.ID, &p.PersonID, &p.CompanyID, &p.Title, &p.Current, &p.StartedAt, &p.EndedAt, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

// CreatePosition inserts a position row and returns the assigned id.
func (s *EntityStore) CreatePosition(ctx context.Context, p crm.Position) (int64, error) {
	query := `
INSERT INTO positions (person_id, company_id, title, current, started_at, ended_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	var id int64
	if err := s.pool.QueryRow(ctx, query,
		p.PersonID, p.CompanyID, p.Title, p.Current, p.StartedAt, p.EndedAt, p.CreatedAt,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}
	return id, nil
}

// DeletePosition removes a position row.
func (s *EntityStore) DeletePosition(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM positions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// ListInteractions returns the interactions recorded for a person.
func (s *EntityStore) ListInteractions(ctx context.Context, personID int64) ([]crm.Interaction, error) {
	query := `
SELECT id, person_id, kind, note, occurred_at, created_at
FROM interactions
WHERE person_id = $1
ORDER BY occurred_at DESC`
	rows, err := s.pool.Query(ctx, query, personID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()
	var out []crm.Interaction
	for rows.Next() {
		var i crm.Interaction
		if err := rows.Scan(&i.ID, &i.PersonID, &i.Kind, &i.Note, &i.OccurredAt, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}

// CreateInteraction inserts an interaction row and returns the assigned id.
func (s *EntityStore) CreateInteraction(ctx context.Context, i crm.Interaction) (int64, error) {
	query := `
INSERT INTO interactions (person_id, kind, note, occurred_at, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	var id int64
	if err := s.pool.QueryRow(ctx, query,
		i.PersonID, i.Kind, i.Note, i.OccurredAt, i.CreatedAt,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert interaction: %w", err)
	}
	return id, nil
}

// DeleteInteraction removes an interaction row.
func (s *EntityStore) DeleteInteraction(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM interactions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

func scanPerson(scan func(dest ...any) error) (crm.Person, error) {
	var (
		p         crm.Person
		headline  *string
		email     *string
		liURL     *string
		avatarURL *string
		notes     *string
		updatedAt *time.Time
	)
	if err := scan(&p.ID, &p.Name, &headline, &email, &liURL, &avatarURL, &notes, &p.CreatedAt, &updatedAt); err != nil {
		return crm.Person{}, err
	}
	p.Headline = deref(headline)
	p.Email = deref(email)
	p.LinkedinURL = deref(liURL)
	p.AvatarURL = deref(avatarURL)
	p.Notes = deref(notes)
	p.UpdatedAt = updatedAt
	return p, nil
}

func scanCompany(scan func(dest ...any) error) (crm.Company, error) {
	var (
		c         crm.Company
		liURL     *string
		website   *string
		logoURL   *string
		industry  *string
		notes     *string
		updatedAt *time.Time
	)
	if err := scan(&c.ID, &c.Name, &liURL, &website, &logoURL, &industry, &notes, &c.CreatedAt, &updatedAt); err != nil {
		return crm.Company{}, err
	}
	c.LinkedinURL = deref(liURL)
	c.Website = deref(website)
	c.LogoURL = deref(logoURL)
	c.Industry = deref(industry)
	c.Notes = deref(notes)
	c.UpdatedAt = updatedAt
	return c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
