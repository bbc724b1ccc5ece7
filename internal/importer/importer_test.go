package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newEngine(t *testing.T) (*Engine, *memory.EntityStore) {
	t.Helper()
	store := memory.NewEntityStore()
	return New(store, fixedClock{now: time.Unix(1700000000, 0).UTC()}, nil), store
}

func TestImportCompanies_SavesNewWithCanonicalURL(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	outcomes := engine.ImportCompanies(context.Background(), []crm.Record{
		{"name": "Acme", "url": "linkedin.com/company/Acme?ref=x", "website": "https://acme.example.com"},
	})

	require.Len(t, outcomes, 1)
	require.Equal(t, StatusSaved, outcomes[0].Status)

	c, err := store.GetCompany(context.Background(), outcomes[0].ID)
	require.NoError(t, err)
	require.Equal(t, "https://www.linkedin.com/company/acme", c.LinkedinURL)
	require.Equal(t, "https://acme.example.com", c.Website)
}

func TestImportCompanies_DedupOnReScrape(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	ctx := context.Background()

	id, err := store.CreateCompany(ctx, crm.Company{
		Name:        "Acme",
		LinkedinURL: "https://www.linkedin.com/company/acme",
		Website:     "https://acme.example.com",
	})
	require.NoError(t, err)

	outcomes := engine.ImportCompanies(ctx, []crm.Record{
		{"name": "Acme", "url": "http://linkedin.com/company/ACME/", "logo": "https://cdn.example.com/acme.png"},
	})
	require.Len(t, outcomes, 1)
	require.Equal(t, StatusExists, outcomes[0].Status)
	require.Equal(t, id, outcomes[0].ID)

	companies, err := store.ListCompanies(ctx, 50)
	require.NoError(t, err)
	require.Len(t, companies, 1, "no new row on re-scrape")

	c, err := store.GetCompany(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/acme.png", c.LogoURL, "missing logo back-filled")
	require.Equal(t, "https://acme.example.com", c.Website, "populated field not overwritten")
}

func TestImportProfiles_PartialFailure(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	outcomes := engine.ImportProfiles(context.Background(), []crm.Record{
		{"name": "Jane Doe", "url": "https://linkedin.com/in/jane"},
		{"name": "LinkedIn Member"},
		{"name": "John Roe", "url": "https://linkedin.com/in/john"},
	})

	require.Len(t, outcomes, 3)
	require.Equal(t, StatusSaved, outcomes[0].Status)
	require.Equal(t, StatusSkipped, outcomes[1].Status)
	require.NotEmpty(t, outcomes[1].Reason)
	require.Equal(t, StatusSaved, outcomes[2].Status)

	people, err := store.ListPeople(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, people, 2)

	summary := Summarize(outcomes)
	require.Equal(t, 2, summary.Saved)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, "2 of 3 imported, 0 already known, 1 skipped", summary.String())
}

func TestImportProfiles_ExistingPersonBackfilled(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	ctx := context.Background()

	id, err := store.CreatePerson(ctx, crm.Person{
		Name:        "Jane Doe",
		LinkedinURL: "https://www.linkedin.com/in/jane",
	})
	require.NoError(t, err)

	outcomes := engine.ImportProfiles(ctx, []crm.Record{
		{"name": "Jane Doe", "url": "linkedin.com/in/JANE", "avatar": "https://cdn.example.com/jane.png"},
	})
	require.Len(t, outcomes, 1)
	require.Equal(t, StatusExists, outcomes[0].Status)
	require.Equal(t, id, outcomes[0].ID)

	p, err := store.GetPerson(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/jane.png", p.AvatarURL)
}

func TestImportProfiles_PositionsFromExperienceAndCurrentCompany(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	ctx := context.Background()

	outcomes := engine.ImportProfiles(ctx, []crm.Record{{
		"name": "Jane Doe",
		"url":  "https://linkedin.com/in/jane",
		"experience": []any{
			map[string]any{"title": "Engineer", "company": "Acme"},
			map[string]any{"title": "Intern", "company": "Globex"},
		},
		"current_company": "Initech",
	}})
	require.Equal(t, StatusSaved, outcomes[0].Status)

	positions, err := store.ListPositions(ctx, outcomes[0].ID)
	require.NoError(t, err)
	require.Len(t, positions, 2, "first experience plus distinct current company")

	var currents int
	for _, p := range positions {
		if p.Current {
			currents++
		}
	}
	require.Equal(t, 1, currents)
}

func TestImportProfiles_CurrentCompanyDuplicateDeduped(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	ctx := context.Background()

	outcomes := engine.ImportProfiles(ctx, []crm.Record{{
		"name": "Jane Doe",
		"url":  "https://linkedin.com/in/jane",
		"experience": []any{
			map[string]any{"title": "Engineer", "company": "Acme"},
		},
		"current_company": "acme",
	}})
	require.Equal(t, StatusSaved, outcomes[0].Status)

	positions, err := store.ListPositions(ctx, outcomes[0].ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.True(t, positions[0].Current)
}

func TestImportProfiles_EmployerMatchedBySubstring(t *testing.T) {
	t.Parallel()

	engine, store := newEngine(t)
	ctx := context.Background()

	companyID, err := store.CreateCompany(ctx, crm.Company{Name: "Acme"})
	require.NoError(t, err)

	outcomes := engine.ImportProfiles(ctx, []crm.Record{{
		"name":            "Jane Doe",
		"url":             "https://linkedin.com/in/jane",
		"current_company": "Acme Corp",
	}})
	require.Equal(t, StatusSaved, outcomes[0].Status)

	positions, err := store.ListPositions(ctx, outcomes[0].ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, companyID, positions[0].CompanyID)

	companies, err := store.ListCompanies(ctx, 50)
	require.NoError(t, err)
	require.Len(t, companies, 1, "no duplicate company created")
}
