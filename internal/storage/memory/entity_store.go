package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tbakker/linkcrm/internal/crm"
)

// EntityStore is an in-memory crm.EntityStore.
type EntityStore struct {
	mu           sync.RWMutex
	nextID       int64
	people       map[int64]crm.Person
	companies    map[int64]crm.Company
	positions    map[int64]crm.Position
	interactions map[int64]crm.Interaction
}

// NewEntityStore constructs an EntityStore.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		nextID:       1,
		people:       make(map[int64]crm.Person),
		companies:    make(map[int64]crm.Company),
		positions:    make(map[int64]crm.Position),
		interactions: make(map[int64]crm.Interaction),
	}
}

func (s *EntityStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// ListPeople returns up to limit people, newest-first.
func (s *EntityStore) ListPeople(_ context.Context, limit int) ([]crm.Person, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crm.Person, 0, len(s.people))
	for _, p := range s.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetPerson fetches one person by id.
func (s *EntityStore) GetPerson(_ context.Context, id int64) (crm.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return crm.Person{}, crm.ErrNotFound
	}
	return p, nil
}

// CreatePerson inserts a person and returns the assigned id.
func (s *EntityStore) CreatePerson(_ context.Context, p crm.Person) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.allocID()
	s.people[p.ID] = p
	return p.ID, nil
}

// UpdatePerson overwrites a person row.
func (s *EntityStore) UpdatePerson(_ context.Context, p crm.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[p.ID]; !ok {
		return crm.ErrNotFound
	}
	s.people[p.ID] = p
	return nil
}

// DeletePerson removes a person row.
func (s *EntityStore) DeletePerson(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[id]; !ok {
		return crm.ErrNotFound
	}
	delete(s.people, id)
	return nil
}

// FindPersonBySlug returns the person whose linkedin URL canonicalizes to slug.
func (s *EntityStore) FindPersonBySlug(_ context.Context, slug string) (crm.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.people {
		if p.LinkedinURL != "" && crm.SlugOf(crm.KindProfile, p.LinkedinURL) == slug {
			return p, nil
		}
	}
	return crm.Person{}, crm.ErrNotFound
}

// ListCompanies returns up to limit companies, newest-first.
func (s *EntityStore) ListCompanies(_ context.Context, limit int) ([]crm.Company, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crm.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetCompany fetches one company by id.
func (s *EntityStore) GetCompany(_ context.Context, id int64) (crm.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return crm.Company{}, crm.ErrNotFound
	}
	return c, nil
}

// CreateCompany inserts a company and returns the assigned id.
func (s *EntityStore) CreateCompany(_ context.Context, c crm.Company) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.allocID()
	s.companies[c.ID] = c
	return c.ID, nil
}

// UpdateCompany overwrites a company row.
func (s *EntityStore) UpdateCompany(_ context.Context, c crm.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		return crm.ErrNotFound
	}
	s.companies[c.ID] = c
	return nil
}

// DeleteCompany removes a company row.
func (s *EntityStore) DeleteCompany(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return crm.ErrNotFound
	}
	delete(s.companies, id)
	return nil
}

// FindCompanyBySlug returns the company whose linkedin URL canonicalizes to slug.
func (s *EntityStore) FindCompanyBySlug(_ context.Context, slug string) (crm.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.LinkedinURL != "" && crm.SlugOf(crm.KindCompany, c.LinkedinURL) == slug {
			return c, nil
		}
	}
	return crm.Company{}, crm.ErrNotFound
}

// FindCompanyByName matches by case-insensitive substring containment in
// either direction, lowest id first.
func (s *EntityStore) FindCompanyByName(_ context.Context, name string) (crm.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(name)
	ids := make([]int64, 0, len(s.companies))
	for id := range s.companies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		have := strings.ToLower(s.companies[id].Name)
		if strings.Contains(have, needle) || strings.Contains(needle, have) {
			return s.companies[id], nil
		}
	}
	return crm.Company{}, crm.ErrNotFound
}

// ListPositions returns the positions held by a person.
func (s *EntityStore) ListPositions(_ context.Context, personID int64) ([]crm.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crm.Position
	for _, p := range s.positions {
		if p.PersonID == personID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// CreatePosition inserts a position row and returns the assigned id.
func (s *EntityStore) CreatePosition(_ context.Context, p crm.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.allocID()
	s.positions[p.ID] = p
	return p.ID, nil
}

// DeletePosition removes a position row.
func (s *EntityStore) DeletePosition(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return crm.ErrNotFound
	}
	delete(s.positions, id)
	return nil
}

// ListInteractions returns the interactions recorded for a person.
func (s *EntityStore) ListInteractions(_ context.Context, personID int64) ([]crm.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crm.Interaction
	for _, i := range s.interactions {
		if i.PersonID == personID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

// CreateInteraction inserts an interaction row and returns the assigned id.
func (s *EntityStore) CreateInteraction(_ context.Context, i crm.Interaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i.ID = s.allocID()
	s.interactions[i.ID] = i
	return i.ID, nil
}

// DeleteInteraction removes an interaction row.
func (s *EntityStore) DeleteInteraction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interactions[id]; !ok {
		return crm.ErrNotFound
	}
	delete(s.interactions, id)
	return nil
}
