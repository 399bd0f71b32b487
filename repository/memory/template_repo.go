// Package memory keeps every repository in process memory. It backs STORAGE_DRIVER=memory
// and the HTTP round-trip tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/repository"
)

type templateRepository struct {
	mu        sync.RWMutex
	templates map[int64]*domain.Template
	nextTpl   int64
	nextNode  int64
	now       func() time.Time
}

// NewTemplateRepository returns an empty in-memory TemplateRepository.
func NewTemplateRepository() repository.TemplateRepository {
	return &templateRepository{
		templates: make(map[int64]*domain.Template),
		now:       time.Now,
	}
}

func (r *templateRepository) List(_ context.Context, guildID string) ([]domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Template
	for _, t := range r.templates {
		if t.GuildID != guildID {
			continue
		}
		meta := *t
		meta.Categories, meta.Channels = nil, nil
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *templateRepository) Get(_ context.Context, guildID string, id int64) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	if !ok || t.GuildID != guildID {
		return nil, domain.ErrTemplateNotFound
	}
	return t.Clone(), nil
}

func (r *templateRepository) Create(_ context.Context, t *domain.Template) (*domain.Template, error) {
	if t == nil || t.GuildID == "" {
		return nil, domain.ErrInvalidPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := t.Clone()
	r.nextTpl++
	stored.ID = r.nextTpl
	now := r.now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now

	catIDs := make(map[int64]int64, len(stored.Categories))
	for i := range stored.Categories {
		r.nextNode++
		catIDs[stored.Categories[i].ID] = r.nextNode
		stored.Categories[i].ID = r.nextNode
	}
	for i := range stored.Channels {
		r.nextNode++
		stored.Channels[i].ID = r.nextNode
		if p := stored.Channels[i].ParentCategoryID; p != nil {
			mapped, ok := catIDs[*p]
			if !ok {
				return nil, domain.WrapError(domain.ErrCodeInvalid, "unknown parent category", fmt.Errorf("category %d", *p))
			}
			stored.Channels[i].ParentCategoryID = &mapped
		}
	}
	stored.Normalize()

	r.templates[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *templateRepository) ReplaceStructure(_ context.Context, guildID string, id int64, t *domain.Template) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.templates[id]
	if !ok || current.GuildID != guildID {
		return nil, domain.ErrTemplateNotFound
	}

	ownedCats := make(map[int64]bool, len(current.Categories))
	for _, c := range current.Categories {
		ownedCats[c.ID] = true
	}
	ownedChans := make(map[int64]bool, len(current.Channels))
	for _, ch := range current.Channels {
		ownedChans[ch.ID] = true
	}

	next := t.Clone()
	idMap := make(map[string]int64)
	catIDs := make(map[int64]int64)
	for i := range next.Categories {
		c := &next.Categories[i]
		switch {
		case c.ID < 0:
			r.nextNode++
			idMap[domain.CategoryRef(c.ID).String()] = r.nextNode
			catIDs[c.ID] = r.nextNode
			c.ID = r.nextNode
		case !ownedCats[c.ID]:
			return nil, domain.WrapError(domain.ErrCodeInvalid, "category belongs to another template", fmt.Errorf("category %d", c.ID))
		}
	}
	for i := range next.Channels {
		ch := &next.Channels[i]
		switch {
		case ch.ID < 0:
			r.nextNode++
			idMap[domain.ChannelRef(ch.ID).String()] = r.nextNode
			ch.ID = r.nextNode
		case !ownedChans[ch.ID]:
			return nil, domain.WrapError(domain.ErrCodeInvalid, "channel belongs to another template", fmt.Errorf("channel %d", ch.ID))
		}
		if p := ch.ParentCategoryID; p != nil && *p < 0 {
			mapped := catIDs[*p]
			ch.ParentCategoryID = &mapped
		}
	}

	next.Normalize()
	current.Categories = next.Categories
	current.Channels = next.Channels
	current.UpdatedAt = r.now().UTC()
	return idMap, nil
}

func (r *templateRepository) UpdateMetadata(_ context.Context, guildID string, id int64, name, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[id]
	if !ok || t.GuildID != guildID {
		return domain.ErrTemplateNotFound
	}
	t.Name, t.Description = name, description
	t.UpdatedAt = r.now().UTC()
	return nil
}

func (r *templateRepository) Delete(_ context.Context, guildID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[id]
	if !ok || t.GuildID != guildID {
		return domain.ErrTemplateNotFound
	}
	delete(r.templates, id)
	return nil
}
