package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbakker/linkcrm/internal/config"
	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/importer"
	"github.com/tbakker/linkcrm/internal/jobs"
	"github.com/tbakker/linkcrm/internal/poller"
	"github.com/tbakker/linkcrm/internal/storage/memory"
)

type fakeGateway struct {
	snapshotID  string
	triggerErr  error
	polls       int
	pollResults []pollResult
}

type pollResult struct {
	snap crm.Snapshot
	err  error
}

func (g *fakeGateway) Trigger(_ context.Context, _ crm.EntityKind, _ []string) (string, error) {
	if g.triggerErr != nil {
		return "", g.triggerErr
	}
	return g.snapshotID, nil
}

func (g *fakeGateway) PollSnapshot(_ context.Context, _ string) (crm.Snapshot, error) {
	if g.polls >= len(g.pollResults) {
		return crm.Snapshot{}, errors.New("unexpected poll")
	}
	res := g.pollResults[g.polls]
	g.polls++
	return res.snap, res.err
}

type fakeIDGen struct {
	next int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("job-%d", g.next), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type failingJobStore struct {
	crm.JobStore
}

func (failingJobStore) CreateJob(context.Context, crm.Job) error {
	return errors.New("db down")
}

type fixture struct {
	server   *Server
	entities *memory.EntityStore
	jobStore crm.JobStore
	poller   *poller.Poller
}

func newFixture(gw crm.ScrapeGateway, jobStore crm.JobStore, cfg config.Config) *fixture {
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	ctrl := jobs.New(gw, jobStore, &fakeIDGen{}, clock, jobs.Config{
		MaxPollAttempts: 3,
		PollInterval:    time.Millisecond,
	}, nil)
	entities := memory.NewEntityStore()
	engine := importer.New(entities, clock, nil)
	p := poller.New(ctrl, poller.Config{Interval: time.Hour}, nil, nil)
	return &fixture{
		server:   NewServer(ctrl, p, engine, entities, cfg, nil),
		entities: entities,
		jobStore: jobStore,
		poller:   p,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTriggerScrape_Accepted(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{snapshotID: "snap-1"}
	f := newFixture(gw, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url":  "https://linkedin.com/company/acme",
		"type": "company",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "job-1", body["job_id"])
	require.Equal(t, "snap-1", body["snapshot_id"])
	require.Equal(t, "pending", body["status"])
	require.Equal(t, float64(1), body["url_count"])

	// The handler registers tracked jobs, URLs included, with the poller.
	entries := f.poller.Jobs()
	require.Len(t, entries, 1)
	require.Equal(t, "job-1", entries[0].JobID)
	require.Equal(t, crm.KindCompany, entries[0].Kind)
	require.Equal(t, []string{"https://linkedin.com/company/acme"}, entries[0].URLs)
}

func TestTriggerScrape_NoValidURLs(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{snapshotID: "snap-1"}, memory.NewJobStore(), config.Config{})
	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url": "https://example.com/not-linkedin",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerScrape_UnknownType(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{snapshotID: "snap-1"}, memory.NewJobStore(), config.Config{})
	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url":  "https://linkedin.com/in/jane",
		"type": "bogus",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerScrape_DegradedWhenStoreDown(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{snapshotID: "snap-1"}
	f := newFixture(gw, failingJobStore{}, config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url": "https://linkedin.com/in/jane",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	require.Nil(t, body["job_id"])
	require.Equal(t, "snap-1", body["snapshot_id"])
	require.Empty(t, f.poller.Jobs())
}

func TestCheckJob_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})
	rec := f.do(t, http.MethodGet, "/v1/scrape/jobs/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScrapeLifecycle_TriggerCheckImport(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		snapshotID: "snap-1",
		pollResults: []pollResult{
			{snap: crm.Snapshot{Ready: false}},
			{snap: crm.Snapshot{Ready: true, Records: []crm.Record{
				{"name": "Acme Corp", "url": "https://linkedin.com/company/acme", "logo": "https://cdn/acme.png"},
			}}},
		},
	}
	f := newFixture(gw, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url":  "https://linkedin.com/company/acme",
		"type": "company",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)

	// First check drains the not-ready poll: transient processing, no write.
	rec = f.do(t, http.MethodGet, "/v1/scrape/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "processing", decodeBody(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/v1/scrape/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "completed", decodeBody(t, rec)["status"])

	rec = f.do(t, http.MethodPost, "/v1/scrape/jobs/"+jobID+"/import", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Contains(t, body["summary"], "1 of 1 imported")

	companies, err := f.entities.ListCompanies(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	require.Equal(t, "Acme Corp", companies[0].Name)
	require.Equal(t, "https://www.linkedin.com/company/acme", companies[0].LinkedinURL)
}

func TestImportJob_ConflictWhenNotCompleted(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		snapshotID:  "snap-1",
		pollResults: []pollResult{{snap: crm.Snapshot{Ready: false}}},
	}
	f := newFixture(gw, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url": "https://linkedin.com/in/jane",
	})
	jobID := decodeBody(t, rec)["job_id"].(string)

	rec = f.do(t, http.MethodPost, "/v1/scrape/jobs/"+jobID+"/import", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestFetchSync_ReturnsRecords(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		snapshotID: "snap-1",
		pollResults: []pollResult{
			{snap: crm.Snapshot{Ready: true, Records: []crm.Record{{"name": "Jane Doe"}}}},
		},
	}
	f := newFixture(gw, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/fetch", map[string]any{
		"url": "https://linkedin.com/in/jane-doe",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "profile", body["type"])
	require.Equal(t, float64(1), body["count"])
}

func TestListJobs_FiltersByStatus(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{snapshotID: "snap-1"}
	f := newFixture(gw, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url": "https://linkedin.com/in/jane",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/scrape/jobs?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["jobs"], 1)

	rec = f.do(t, http.MethodGet, "/v1/scrape/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody(t, rec)["jobs"])
}

func TestPollerEndpoints(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{snapshotID: "snap-1"}
	f := newFixture(gw, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url": "https://linkedin.com/in/jane",
	})
	jobID := decodeBody(t, rec)["job_id"].(string)

	rec = f.do(t, http.MethodGet, "/v1/poller/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["jobs"], 1)

	rec = f.do(t, http.MethodDelete, "/v1/poller/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, f.poller.Jobs())
}

func TestPeopleCRUD(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/people", map[string]any{
		"name":     "Jane Doe",
		"headline": "Engineer",
		"email":    "jane@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	id := fmt.Sprintf("%.0f", created["id"].(float64))

	rec = f.do(t, http.MethodGet, "/v1/people/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Jane Doe", decodeBody(t, rec)["name"])

	rec = f.do(t, http.MethodPut, "/v1/people/"+id, map[string]any{
		"name":     "Jane Doe",
		"headline": "Staff Engineer",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Staff Engineer", decodeBody(t, rec)["headline"])

	rec = f.do(t, http.MethodGet, "/v1/people", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["people"], 1)

	rec = f.do(t, http.MethodDelete, "/v1/people/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/people/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPeople_CapsAtFifty(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})
	for i := 0; i < 55; i++ {
		_, err := f.entities.CreatePerson(context.Background(), crm.Person{
			Name: fmt.Sprintf("Person %d", i),
		})
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/v1/people", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["people"], 50)
}

func TestPollerEndpoints_NilPoller(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{snapshotID: "snap-1"}, memory.NewJobStore(), config.Config{})
	f.server.poller = nil

	rec := f.do(t, http.MethodGet, "/v1/poller/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody(t, rec)["jobs"])

	rec = f.do(t, http.MethodDelete, "/v1/poller/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/scrape/trigger", map[string]any{
		"url": "https://linkedin.com/in/jane",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreatePerson_RequiresName(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})
	rec := f.do(t, http.MethodPost, "/v1/people", map[string]any{
		"headline": "no name",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompanyCRUDAndPositions(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/companies", map[string]any{
		"name":    "Acme Corp",
		"website": "https://acme.example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	companyID := decodeBody(t, rec)["id"].(float64)

	rec = f.do(t, http.MethodPost, "/v1/people", map[string]any{"name": "Jane Doe"})
	require.Equal(t, http.StatusCreated, rec.Code)
	personID := decodeBody(t, rec)["id"].(float64)

	rec = f.do(t, http.MethodPost, "/v1/positions", map[string]any{
		"person_id":  personID,
		"company_id": companyID,
		"title":      "CTO",
		"current":    true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/people/%.0f/positions", personID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["positions"], 1)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/companies/%.0f", companyID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Acme Corp", decodeBody(t, rec)["name"])
}

func TestInteractions(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/people", map[string]any{"name": "Jane Doe"})
	require.Equal(t, http.StatusCreated, rec.Code)
	personID := decodeBody(t, rec)["id"].(float64)

	rec = f.do(t, http.MethodPost, "/v1/interactions", map[string]any{
		"person_id": personID,
		"kind":      "call",
		"note":      "intro chat",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	interactionID := decodeBody(t, rec)["id"].(float64)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/people/%.0f/interactions", personID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["interactions"], 1)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/interactions/%.0f", interactionID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	f := newFixture(&fakeGateway{}, memory.NewJobStore(), cfg)

	rec := f.do(t, http.MethodGet, "/v1/people", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/people", nil)
	req.Header.Set("X-API-Key", "secret")
	resp := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeGateway{}, memory.NewJobStore(), config.Config{})
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
