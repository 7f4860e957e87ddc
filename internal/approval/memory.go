package approval

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps subjects in process memory. It applies the same
// compare-and-set rule on status and version as the Postgres repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	subjects map[string]Subject
}

// NewMemoryRepository constructs a MemoryRepository seeded with subjects.
func NewMemoryRepository(seed ...Subject) *MemoryRepository {
	repo := &MemoryRepository{subjects: make(map[string]Subject, len(seed))}
	for _, s := range seed {
		repo.subjects[s.ID] = clone(s)
	}
	return repo
}

// LoadSubject returns the subject with id.
func (r *MemoryRepository) LoadSubject(ctx context.Context, id string) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[id]
	if !ok {
		return Subject{}, ErrNotFound
	}
	return clone(s), nil
}

// SaveSubject stores s if the stored status and version still equal the
// expected ones.
func (r *MemoryRepository) SaveSubject(ctx context.Context, s Subject, expected Status, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.subjects[s.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected || current.Version != expectedVersion {
		return ErrConflict
	}
	r.subjects[s.ID] = clone(s)
	return nil
}

// CreateSubject inserts a new subject.
func (r *MemoryRepository) CreateSubject(ctx context.Context, s Subject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subjects[s.ID]; exists {
		return ErrConflict
	}
	r.subjects[s.ID] = clone(s)
	return nil
}

// ListSubjects returns subjects matching the filter, oldest first.
func (r *MemoryRepository) ListSubjects(ctx context.Context, f ListFilter) ([]Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		if f.matches(s) {
			out = append(out, clone(s))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (f ListFilter) matches(s Subject) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, s.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
		return false
	}
	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func containsStatus(statuses []Status, st Status) bool {
	for _, v := range statuses {
		if v == st {
			return true
		}
	}
	return false
}

func clone(s Subject) Subject {
	if s.Payload != nil {
		s.Payload = append([]byte(nil), s.Payload...)
	}
	return s
}

var _ RepositoryPort = (*MemoryRepository)(nil)
