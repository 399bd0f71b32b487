package domain

import (
	"sort"
	"time"
)

// ChannelKind enumerates the channel flavours a template may describe.
type ChannelKind string

const (
	ChannelText         ChannelKind = "text"
	ChannelVoice        ChannelKind = "voice"
	ChannelAnnouncement ChannelKind = "announcement"
	ChannelForum        ChannelKind = "forum"
	ChannelStage        ChannelKind = "stage"
)

// Valid reports whether the kind is one the store accepts.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelText, ChannelVoice, ChannelAnnouncement, ChannelForum, ChannelStage:
		return true
	}
	return false
}

// Template is the persisted root document describing a guild's category/channel layout.
// An ID of zero marks a template that has not been persisted yet.
type Template struct {
	ID                int64      `json:"id"`
	GuildID           string     `json:"guild_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	IsInitialSnapshot bool       `json:"is_initial_snapshot"`
	Categories        []Category `json:"categories"`
	Channels          []Channel  `json:"channels"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Category groups channels. Categories are always top-level.
// Negative IDs are provisional and only exist client-side until the next save.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Channel belongs either to a category or, when ParentCategoryID is nil, to the template root.
type Channel struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Kind             ChannelKind `json:"kind"`
	ParentCategoryID *int64      `json:"parent_category_id,omitempty"`
	Position         int         `json:"position"`
}

// Uncategorized reports whether the channel hangs directly under the template root.
func (c Channel) Uncategorized() bool {
	return c.ParentCategoryID == nil
}

// Persisted reports whether the template already has a server identity.
func (t *Template) Persisted() bool {
	return t != nil && t.ID > 0
}

// Mutable reports whether the template may be overwritten or deleted in place.
func (t *Template) Mutable() bool {
	return t != nil && !t.IsInitialSnapshot
}

func (t *Template) Touch() {
	if t == nil {
		return
	}
	t.UpdatedAt = time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Categories = append([]Category(nil), t.Categories...)
	out.Channels = make([]Channel, len(t.Channels))
	for i, ch := range t.Channels {
		if ch.ParentCategoryID != nil {
			parent := *ch.ParentCategoryID
			ch.ParentCategoryID = &parent
		}
		out.Channels[i] = ch
	}
	return &out
}

// Normalize sorts both collections into render order and rewrites positions so that they
// are dense and zero-based per sibling group. Ties are broken by id.
func (t *Template) Normalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Categories, func(i, j int) bool {
		a, b := t.Categories[i], t.Categories[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	for i := range t.Categories {
		t.Categories[i].Position = i
	}

	sort.SliceStable(t.Channels, func(i, j int) bool {
		a, b := t.Channels[i], t.Channels[j]
		pa, pb := parentKey(a), parentKey(b)
		if pa != pb {
			return pa < pb
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	counters := make(map[int64]int)
	for i := range t.Channels {
		key := parentKey(t.Channels[i])
		t.Channels[i].Position = counters[key]
		counters[key]++
	}
}

func parentKey(ch Channel) int64 {
	if ch.ParentCategoryID == nil {
		return 0
	}
	return *ch.ParentCategoryID
}

// TemplateSummary is the list projection used by template pickers.
type TemplateSummary struct {
	ID                int64     `json:"id"`
	GuildID           string    `json:"guild_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	IsInitialSnapshot bool      `json:"is_initial_snapshot"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// Summary projects the template into its list form.
func (t *Template) Summary(activeID int64) TemplateSummary {
	return TemplateSummary{
		ID:                t.ID,
		GuildID:           t.GuildID,
		Name:              t.Name,
		Description:       t.Description,
		IsInitialSnapshot: t.IsInitialSnapshot,
		IsActive:          activeID != 0 && activeID == t.ID,
		CreatedAt:         t.CreatedAt,
	}
}

// SharedTemplate is a template duplicated into the cross-guild shared namespace.
type SharedTemplate struct {
	ID            int64     `json:"id"`
	ShareCode     string    `json:"share_code"`
	SourceGuildID string    `json:"source_guild_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Structure     Template  `json:"structure"`
	CreatedAt     time.Time `json:"created_at"`
}
