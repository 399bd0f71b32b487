// Package template holds the server-side rules of the template store: the initial snapshot
// is immutable, undeletable and unshareable; structure writes are validated before they
// reach storage; forks and shared copies always produce fresh templates.
package template

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/pkg/logger"
	"github.com/fastygo/guild-designer/repository"
)

type UseCase struct {
	templates repository.TemplateRepository
	active    repository.ActiveRepository
	shared    repository.SharedRepository
	logger    *zap.Logger

	newShareCode func() string
}

func New(templates repository.TemplateRepository, active repository.ActiveRepository, shared repository.SharedRepository, log *zap.Logger) *UseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &UseCase{
		templates:    templates,
		active:       active,
		shared:       shared,
		logger:       log.Named("templates"),
		newShareCode: shareCode,
	}
}

func shareCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (uc *UseCase) log(ctx context.Context) *zap.Logger {
	return logger.WithRequestID(ctx, uc.logger)
}

// List returns the guild's template summaries with the active flag set.
func (uc *UseCase) List(ctx context.Context, guildID string) ([]domain.TemplateSummary, error) {
	templates, err := uc.templates.List(ctx, guildID)
	if err != nil {
		return nil, err
	}
	activeID, err := uc.active.GetActive(ctx, guildID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.TemplateSummary, 0, len(templates))
	for i := range templates {
		out = append(out, templates[i].Summary(activeID))
	}
	return out, nil
}

func (uc *UseCase) Get(ctx context.Context, guildID string, id int64) (*domain.Template, error) {
	return uc.templates.Get(ctx, guildID, id)
}

// mutable loads a template that may be changed in place.
func (uc *UseCase) mutable(ctx context.Context, guildID string, id int64) (*domain.Template, error) {
	t, err := uc.templates.Get(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	if !t.Mutable() {
		return nil, domain.ErrInitialSnapshotLocked
	}
	return t, nil
}

// SaveStructure replaces the structure of a template and reports the ids assigned to
// provisional nodes.
func (uc *UseCase) SaveStructure(ctx context.Context, guildID string, id int64, payload domain.StructurePayload) (domain.SaveResult, error) {
	if _, err := uc.mutable(ctx, guildID, id); err != nil {
		return domain.SaveResult{}, err
	}

	next, err := domain.TemplateFromStructure(id, payload)
	if err != nil {
		return domain.SaveResult{}, err
	}

	idMap, err := uc.templates.ReplaceStructure(ctx, guildID, id, next)
	if err != nil {
		return domain.SaveResult{}, err
	}
	uc.log(ctx).Info("template structure saved",
		zap.String("guild_id", guildID),
		zap.Int64("template_id", id),
		zap.Int("categories", len(next.Categories)),
		zap.Int("channels", len(next.Channels)),
		zap.Int("created", len(idMap)))
	return domain.SaveResult{IDMap: idMap}, nil
}

// CreateFromStructure stores a new template built from a client-side structure.
func (uc *UseCase) CreateFromStructure(ctx context.Context, guildID string, req domain.ForkRequest) (int64, error) {
	name := strings.TrimSpace(req.NewName)
	if name == "" {
		return 0, domain.NewError(domain.ErrCodeInvalid, "template name is required")
	}

	tpl, err := domain.TemplateFromStructure(0, req.Structure)
	if err != nil {
		return 0, err
	}
	tpl.GuildID = guildID
	tpl.Name = name
	tpl.Description = req.NewDescription

	created, err := uc.templates.Create(ctx, tpl)
	if err != nil {
		return 0, err
	}
	uc.log(ctx).Info("template created from structure",
		zap.String("guild_id", guildID),
		zap.Int64("template_id", created.ID),
		zap.String("name", name))
	return created.ID, nil
}

func (uc *UseCase) UpdateMetadata(ctx context.Context, guildID string, id int64, name, description string) (*domain.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "template name is required")
	}
	t, err := uc.mutable(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	if err := uc.templates.UpdateMetadata(ctx, guildID, id, name, description); err != nil {
		return nil, err
	}
	t.Name, t.Description = name, description
	return t, nil
}

// Activate points the guild at id.
func (uc *UseCase) Activate(ctx context.Context, guildID string, id int64) error {
	if _, err := uc.templates.Get(ctx, guildID, id); err != nil {
		return err
	}
	if err := uc.active.SetActive(ctx, guildID, id); err != nil {
		return err
	}
	uc.log(ctx).Info("template activated", zap.String("guild_id", guildID), zap.Int64("template_id", id))
	return nil
}

// Delete removes a template. Deleting the active template leaves the guild without one.
func (uc *UseCase) Delete(ctx context.Context, guildID string, id int64) error {
	if _, err := uc.mutable(ctx, guildID, id); err != nil {
		return err
	}
	activeID, err := uc.active.GetActive(ctx, guildID)
	if err != nil {
		return err
	}
	if err := uc.templates.Delete(ctx, guildID, id); err != nil {
		return err
	}
	if activeID == id {
		if err := uc.active.ClearActive(ctx, guildID); err != nil {
			return err
		}
	}
	uc.log(ctx).Info("template deleted",
		zap.String("guild_id", guildID),
		zap.Int64("template_id", id),
		zap.Bool("was_active", activeID == id))
	return nil
}

// CaptureSnapshot stores the guild's initial snapshot. A guild has at most one; it becomes
// active when nothing else is.
func (uc *UseCase) CaptureSnapshot(ctx context.Context, guildID, name string, structure domain.StructurePayload) (int64, error) {
	existing, err := uc.templates.List(ctx, guildID)
	if err != nil {
		return 0, err
	}
	for _, t := range existing {
		if t.IsInitialSnapshot {
			return 0, domain.ErrSnapshotExists
		}
	}

	tpl, err := domain.TemplateFromStructure(0, structure)
	if err != nil {
		return 0, err
	}
	tpl.GuildID = guildID
	tpl.Name = strings.TrimSpace(name)
	if tpl.Name == "" {
		tpl.Name = "Initial snapshot"
	}
	tpl.IsInitialSnapshot = true

	created, err := uc.templates.Create(ctx, tpl)
	if err != nil {
		return 0, err
	}

	activeID, err := uc.active.GetActive(ctx, guildID)
	if err != nil {
		return 0, err
	}
	if activeID == 0 {
		if err := uc.active.SetActive(ctx, guildID, created.ID); err != nil {
			return 0, err
		}
	}
	uc.log(ctx).Info("initial snapshot captured", zap.String("guild_id", guildID), zap.Int64("template_id", created.ID))
	return created.ID, nil
}

func (uc *UseCase) ListShared(ctx context.Context) ([]domain.SharedTemplate, error) {
	return uc.shared.List(ctx)
}

// Share copies a guild template into the shared namespace.
func (uc *UseCase) Share(ctx context.Context, guildID string, id int64) (domain.ShareResult, error) {
	t, err := uc.mutable(ctx, guildID, id)
	if err != nil {
		return domain.ShareResult{}, err
	}

	structure := t.Clone()
	structure.ID = 0
	structure.GuildID = ""
	created, err := uc.shared.Create(ctx, &domain.SharedTemplate{
		ShareCode:     uc.newShareCode(),
		SourceGuildID: guildID,
		Name:          t.Name,
		Description:   t.Description,
		Structure:     *structure,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.ShareResult{}, err
	}
	uc.log(ctx).Info("template shared",
		zap.String("guild_id", guildID),
		zap.Int64("template_id", id),
		zap.Int64("shared_template_id", created.ID))
	return domain.ShareResult{SharedTemplateID: created.ID, ShareCode: created.ShareCode}, nil
}

// CopyShared creates a guild template from a shared one.
func (uc *UseCase) CopyShared(ctx context.Context, guildID string, sharedID int64, newName string) (int64, error) {
	s, err := uc.shared.Get(ctx, sharedID)
	if err != nil {
		return 0, err
	}

	tpl := s.Structure.Clone()
	tpl.ID = 0
	tpl.GuildID = guildID
	tpl.IsInitialSnapshot = false
	tpl.Name = strings.TrimSpace(newName)
	if tpl.Name == "" {
		tpl.Name = s.Name
	}
	tpl.Description = s.Description

	created, err := uc.templates.Create(ctx, tpl)
	if err != nil {
		return 0, err
	}
	uc.log(ctx).Info("shared template copied",
		zap.String("guild_id", guildID),
		zap.Int64("shared_template_id", sharedID),
		zap.Int64("template_id", created.ID))
	return created.ID, nil
}

func (uc *UseCase) DeleteShared(ctx context.Context, sharedID int64) error {
	return uc.shared.Delete(ctx, sharedID)
}

// PurgeShared removes shared templates older than retention.
func (uc *UseCase) PurgeShared(ctx context.Context, retention time.Duration) (int, error) {
	return uc.shared.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
