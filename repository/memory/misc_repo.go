package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/repository"
)

type activeRepository struct {
	mu     sync.RWMutex
	active map[string]int64
}

// NewActiveRepository returns an in-memory ActiveRepository.
func NewActiveRepository() repository.ActiveRepository {
	return &activeRepository{active: make(map[string]int64)}
}

func (r *activeRepository) GetActive(_ context.Context, guildID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[guildID], nil
}

func (r *activeRepository) SetActive(_ context.Context, guildID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[guildID] = id
	return nil
}

func (r *activeRepository) ClearActive(_ context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, guildID)
	return nil
}

type sharedRepository struct {
	mu     sync.RWMutex
	shared map[int64]*domain.SharedTemplate
	nextID int64
}

// NewSharedRepository returns an in-memory SharedRepository.
func NewSharedRepository() repository.SharedRepository {
	return &sharedRepository{shared: make(map[int64]*domain.SharedTemplate)}
}

func (r *sharedRepository) List(context.Context) ([]domain.SharedTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SharedTemplate, 0, len(r.shared))
	for _, s := range r.shared {
		out = append(out, cloneShared(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *sharedRepository) Get(_ context.Context, id int64) (*domain.SharedTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shared[id]
	if !ok {
		return nil, domain.ErrSharedTemplateNotFound
	}
	out := cloneShared(s)
	return &out, nil
}

func (r *sharedRepository) Create(_ context.Context, s *domain.SharedTemplate) (*domain.SharedTemplate, error) {
	if s == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneShared(s)
	r.nextID++
	stored.ID = r.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.shared[stored.ID] = &stored
	out := cloneShared(&stored)
	return &out, nil
}

func (r *sharedRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shared[id]; !ok {
		return domain.ErrSharedTemplateNotFound
	}
	delete(r.shared, id)
	return nil
}

func (r *sharedRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.shared {
		if s.CreatedAt.Before(cutoff) {
			delete(r.shared, id)
			removed++
		}
	}
	return removed, nil
}

func cloneShared(s *domain.SharedTemplate) domain.SharedTemplate {
	out := *s
	out.Structure = *s.Structure.Clone()
	return out
}

type layoutRepository struct {
	mu      sync.RWMutex
	layouts map[string]domain.Layout
}

// NewLayoutRepository returns an in-memory LayoutRepository.
func NewLayoutRepository() repository.LayoutRepository {
	return &layoutRepository{layouts: make(map[string]domain.Layout)}
}

func layoutKey(guildID, page string) string {
	return guildID + "/" + page
}

func (r *layoutRepository) Get(_ context.Context, guildID, page string) (*domain.Layout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.layouts[layoutKey(guildID, page)]
	if !ok {
		return nil, domain.ErrLayoutNotFound
	}
	l.Items = append(json.RawMessage(nil), l.Items...)
	return &l, nil
}

func (r *layoutRepository) Put(_ context.Context, layout *domain.Layout) error {
	if layout == nil || layout.GuildID == "" || layout.Page == "" {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *layout
	stored.Items = append(json.RawMessage(nil), layout.Items...)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}
	r.layouts[layoutKey(layout.GuildID, layout.Page)] = stored
	return nil
}

func (r *layoutRepository) Delete(_ context.Context, guildID, page string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := layoutKey(guildID, page)
	if _, ok := r.layouts[key]; !ok {
		return domain.ErrLayoutNotFound
	}
	delete(r.layouts, key)
	return nil
}
