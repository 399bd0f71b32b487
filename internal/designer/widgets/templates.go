package widgets

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
)

// TemplateReader is the read-only access a template list needs to populate itself.
type TemplateReader interface {
	ListTemplates(ctx context.Context, guildID string) ([]domain.TemplateSummary, error)
	ListShared(ctx context.Context) ([]domain.SharedTemplate, error)
}

// TemplateRow is one entry of a template list.
type TemplateRow struct {
	ID                int64
	Name              string
	Description       string
	IsInitialSnapshot bool
	IsActive          bool
	ShareCode         string
	CreatedAt         time.Time
}

// CanDelete reports whether the row offers a delete action.
func (r TemplateRow) CanDelete() bool { return !r.IsInitialSnapshot }

// CanShare reports whether the row offers a share action.
func (r TemplateRow) CanShare() bool { return !r.IsInitialSnapshot }

// CanRename reports whether the row offers a rename action.
func (r TemplateRow) CanRename() bool { return !r.IsInitialSnapshot }

// TemplateList is a picker over either the guild's templates or the shared namespace.
type TemplateList struct {
	listType events.ListType
	guildID  string
	reader   TemplateReader
	bus      *eventbus.Bus
	logger   *zap.Logger
	timeout  time.Duration

	mu       sync.RWMutex
	rows     []TemplateRow
	selected int64
}

// NewTemplateList builds a list of the given type. It does not fetch until Refresh.
func NewTemplateList(listType events.ListType, guildID string, reader TemplateReader, bus *eventbus.Bus, logger *zap.Logger) *TemplateList {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &TemplateList{
		listType: listType,
		guildID:  guildID,
		reader:   reader,
		bus:      bus,
		logger:   logger.Named("templates").With(zap.String("list", string(listType))),
		timeout:  10 * time.Second,
	}

	eventbus.On(bus, events.TemplateActivated, func(e events.TemplateActivatedEvent) {
		l.markActive(e.ActivatedTemplateID)
	})
	eventbus.On(bus, events.TemplateDeleted, func(e events.TemplateDeletedEvent) {
		if e.ListType == l.listType {
			l.refreshAsync()
		}
	})
	eventbus.On(bus, events.TemplateRenamed, func(e events.TemplateRenamedEvent) {
		l.rename(e.TemplateID, e.Name, e.Description)
	})

	switch listType {
	case events.ListGuild:
		eventbus.On(bus, events.LoadTemplateData, func(e events.LoadTemplateDataEvent) {
			if e.TemplateData != nil {
				l.selectRow(e.TemplateData.ID)
			}
		})
		eventbus.On(bus, events.StructureSaved, func(e events.StructureSavedEvent) {
			if e.IsNew {
				l.refreshAsync()
				l.selectRow(e.NewTemplateID)
			}
		})
		eventbus.On(bus, events.SharedCopied, func(events.SharedCopiedEvent) { l.refreshAsync() })
	case events.ListShared:
		eventbus.On(bus, events.TemplateShared, func(events.TemplateSharedEvent) { l.refreshAsync() })
	}
	return l
}

// Refresh refetches the rows.
func (l *TemplateList) Refresh(ctx context.Context) error {
	var rows []TemplateRow
	switch l.listType {
	case events.ListShared:
		shared, err := l.reader.ListShared(ctx)
		if err != nil {
			return err
		}
		for _, s := range shared {
			rows = append(rows, TemplateRow{
				ID:          s.ID,
				Name:        s.Name,
				Description: s.Description,
				ShareCode:   s.ShareCode,
				CreatedAt:   s.CreatedAt,
			})
		}
	default:
		list, err := l.reader.ListTemplates(ctx, l.guildID)
		if err != nil {
			return err
		}
		for _, s := range list {
			rows = append(rows, TemplateRow{
				ID:                s.ID,
				Name:              s.Name,
				Description:       s.Description,
				IsInitialSnapshot: s.IsInitialSnapshot,
				IsActive:          s.IsActive,
				CreatedAt:         s.CreatedAt,
			})
		}
	}

	l.mu.Lock()
	l.rows = rows
	l.mu.Unlock()
	l.logger.Debug("template list refreshed", zap.Int("rows", len(rows)))
	return nil
}

// refreshAsync runs from bus handlers; a failed read leaves the previous rows in place.
func (l *TemplateList) refreshAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.Refresh(ctx); err != nil {
		l.logger.Warn("template list refresh failed", zap.Error(err))
		eventbus.Emit(l.bus, events.Notification, events.NotificationEvent{
			Level:   events.LevelWarning,
			Message: "Could not refresh the template list",
		})
	}
}

// Rows returns the current rows.
func (l *TemplateList) Rows() []TemplateRow {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]TemplateRow(nil), l.rows...)
}

// Selected returns the highlighted template id.
func (l *TemplateList) Selected() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

func (l *TemplateList) selectRow(id int64) {
	l.mu.Lock()
	l.selected = id
	l.mu.Unlock()
}

func (l *TemplateList) markActive(id int64) {
	if l.listType != events.ListGuild {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		l.rows[i].IsActive = l.rows[i].ID == id
	}
}

func (l *TemplateList) rename(id int64, name, description string) {
	if l.listType != events.ListGuild {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].ID == id {
			l.rows[i].Name = name
			l.rows[i].Description = description
		}
	}
}

func (l *TemplateList) row(id int64) (TemplateRow, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.rows {
		if r.ID == id {
			return r, true
		}
	}
	return TemplateRow{}, false
}

// Load asks the engine to open a guild template.
func (l *TemplateList) Load(id int64) {
	if l.listType != events.ListGuild {
		return
	}
	eventbus.Emit(l.bus, events.RequestLoadTemplate, events.RequestLoadTemplateEvent{TemplateID: id})
}

// Activate opens the activation confirmation. The active row offers no action.
func (l *TemplateList) Activate(id int64) {
	r, ok := l.row(id)
	if !ok || r.IsActive || l.listType != events.ListGuild {
		return
	}
	eventbus.Emit(l.bus, events.RequestActivateTemplate, events.RequestActivateTemplateEvent{TemplateID: id, TemplateName: r.Name})
}

// Delete opens the delete confirmation for the row.
func (l *TemplateList) Delete(id int64) {
	r, ok := l.row(id)
	if !ok || !r.CanDelete() {
		return
	}
	eventbus.Emit(l.bus, events.RequestDeleteTemplate, events.RequestDeleteTemplateEvent{
		TemplateID:   id,
		TemplateName: r.Name,
		ListType:     l.listType,
	})
}

// Share opens the share confirmation for a guild template.
func (l *TemplateList) Share(id int64) {
	r, ok := l.row(id)
	if !ok || !r.CanShare() || l.listType != events.ListGuild {
		return
	}
	eventbus.Emit(l.bus, events.RequestShareTemplate, events.RequestShareTemplateEvent{TemplateID: id, TemplateName: r.Name})
}

// Rename asks the engine to rename a guild template.
func (l *TemplateList) Rename(id int64, name, description string) {
	r, ok := l.row(id)
	if !ok || !r.CanRename() || l.listType != events.ListGuild {
		return
	}
	eventbus.Emit(l.bus, events.RequestRenameTemplate, events.RequestRenameTemplateEvent{TemplateID: id, Name: name, Description: description})
}

// Copy asks the engine to copy a shared template into the guild.
func (l *TemplateList) Copy(id int64, newName string) {
	if _, ok := l.row(id); !ok || l.listType != events.ListShared {
		return
	}
	eventbus.Emit(l.bus, events.RequestCopyShared, events.RequestCopySharedEvent{SharedTemplateID: id, NewName: newName})
}
