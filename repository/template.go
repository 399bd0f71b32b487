package repository

import (
	"context"
	"time"

	"github.com/fastygo/guild-designer/domain"
)

// TemplateRepository stores guild templates with their categories and channels.
type TemplateRepository interface {
	// List returns the guild's templates without their structure, oldest first.
	List(ctx context.Context, guildID string) ([]domain.Template, error)
	Get(ctx context.Context, guildID string, id int64) (*domain.Template, error)
	// Create stores a new template. Category and channel ids of t are only used to link
	// channels to their category; fresh ids are assigned to every node.
	Create(ctx context.Context, t *domain.Template) (*domain.Template, error)
	// ReplaceStructure makes t's categories and channels the full structure of the template.
	// Positive ids must already belong to it, negative ids are created and absent nodes are
	// removed. The returned map names each created node ("category_new_3") with its new id.
	ReplaceStructure(ctx context.Context, guildID string, id int64, t *domain.Template) (map[string]int64, error)
	UpdateMetadata(ctx context.Context, guildID string, id int64, name, description string) error
	Delete(ctx context.Context, guildID string, id int64) error
}

// ActiveRepository tracks which template is live for each guild.
type ActiveRepository interface {
	// GetActive returns zero when the guild has no active template.
	GetActive(ctx context.Context, guildID string) (int64, error)
	SetActive(ctx context.Context, guildID string, id int64) error
	ClearActive(ctx context.Context, guildID string) error
}

// SharedRepository stores templates copied into the cross-guild namespace.
type SharedRepository interface {
	List(ctx context.Context) ([]domain.SharedTemplate, error)
	Get(ctx context.Context, id int64) (*domain.SharedTemplate, error)
	Create(ctx context.Context, s *domain.SharedTemplate) (*domain.SharedTemplate, error)
	Delete(ctx context.Context, id int64) error
	// DeleteOlderThan removes shared templates created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// LayoutRepository stores designer page layouts.
type LayoutRepository interface {
	Get(ctx context.Context, guildID, page string) (*domain.Layout, error)
	Put(ctx context.Context, layout *domain.Layout) error
	Delete(ctx context.Context, guildID, page string) error
}
