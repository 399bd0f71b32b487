// Package designer wires one editor session: bus, session state, structure model, tree
// adapter, widgets and sync engine.
package designer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/layout"
	"github.com/fastygo/guild-designer/internal/designer/session"
	"github.com/fastygo/guild-designer/internal/designer/structure"
	"github.com/fastygo/guild-designer/internal/designer/syncengine"
	"github.com/fastygo/guild-designer/internal/designer/tree"
	"github.com/fastygo/guild-designer/internal/designer/widgets"
)

// LayoutPage is the layout key of the designer page.
const LayoutPage = "designer"

// Store is everything the editor needs from the remote side.
type Store interface {
	syncengine.TemplateStore
	widgets.TemplateReader
	layout.Store
}

// Options configures a Designer.
type Options struct {
	GuildID        string
	RequestTimeout time.Duration
	LayoutDebounce time.Duration
	// Widget renders the tree; a headless widget is used when nil.
	Widget tree.Widget
	Now    func() time.Time
	Logger *zap.Logger
}

// Designer is one editor session. Components only talk to each other through Bus.
type Designer struct {
	Bus     *eventbus.Bus
	Session *session.State
	Model   *structure.Model
	Tree    *tree.Adapter
	Engine  *syncengine.Engine

	Categories      *widgets.CategoriesList
	Channels        *widgets.ChannelsList
	GuildTemplates  *widgets.TemplateList
	SharedTemplates *widgets.TemplateList
	Toolbar         *widgets.Toolbar
	Properties      *widgets.PropertiesPanel
	DeleteModal     *widgets.DeleteModal
	ActivateModal   *widgets.ActivateModal
	ShareModal      *widgets.ShareModal
	SaveAsNewModal  *widgets.SaveAsNewModal
	Layout          *layout.Autosaver

	logger *zap.Logger
}

// New builds a session. Registration order matters: the session and the tree adapter see
// every event before the widgets that read from them.
func New(store Store, opts Options) *Designer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	widget := opts.Widget
	if widget == nil {
		widget = tree.NewHeadless()
	}

	d := &Designer{logger: logger.Named("designer")}
	d.Bus = eventbus.New(logger)
	d.Session = session.New(d.Bus, logger)
	d.Model = structure.New()
	d.Tree = tree.NewAdapter(d.Model, widget, d.Bus, logger)

	d.Categories = widgets.NewCategoriesList(d.Model, d.Bus)
	d.Channels = widgets.NewChannelsList(d.Model, d.Bus)
	d.GuildTemplates = widgets.NewTemplateList(events.ListGuild, opts.GuildID, store, d.Bus, logger)
	d.SharedTemplates = widgets.NewTemplateList(events.ListShared, opts.GuildID, store, d.Bus, logger)
	d.Toolbar = widgets.NewToolbar(d.Session, d.Bus)
	d.Properties = widgets.NewPropertiesPanel(d.Model, d.Bus)
	d.DeleteModal = widgets.NewDeleteModal(d.Bus)
	d.ActivateModal = widgets.NewActivateModal(d.Bus)
	d.ShareModal = widgets.NewShareModal(d.Bus)
	d.SaveAsNewModal = widgets.NewSaveAsNewModal(d.Bus)

	d.Engine = syncengine.New(store, d.Model, d.Session, d.Bus, syncengine.Config{
		GuildID:        opts.GuildID,
		RequestTimeout: opts.RequestTimeout,
		Now:            opts.Now,
	}, logger)
	d.Layout = layout.NewAutosaver(store, opts.GuildID, LayoutPage, layout.Options{
		Delay:   opts.LayoutDebounce,
		Timeout: opts.RequestTimeout,
		Bus:     d.Bus,
		Logger:  logger,
	})

	eventbus.On(d.Bus, events.Notification, d.logNotification)
	return d
}

func (d *Designer) logNotification(e events.NotificationEvent) {
	switch e.Level {
	case events.LevelError:
		d.logger.Error(e.Message)
	case events.LevelWarning:
		d.logger.Warn(e.Message)
	default:
		d.logger.Info(e.Message)
	}
}

// Start populates the template lists and loads the guild's active template.
func (d *Designer) Start(ctx context.Context) error {
	if err := d.GuildTemplates.Refresh(ctx); err != nil {
		return err
	}
	if err := d.SharedTemplates.Refresh(ctx); err != nil {
		d.logger.Warn("shared templates unavailable", zap.Error(err))
	}
	return d.Engine.Start(ctx)
}

// Close flushes the layout and detaches the long-lived subscribers.
func (d *Designer) Close(ctx context.Context) error {
	err := d.Layout.Close(ctx)
	d.Engine.Close()
	d.Session.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
