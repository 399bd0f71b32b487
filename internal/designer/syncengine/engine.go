// Package syncengine serializes the in-memory structure, talks to the template store and
// turns outcomes into domain events. It owns the fork-on-write flow for protected templates.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/session"
	"github.com/fastygo/guild-designer/internal/designer/structure"
)

// TemplateStore is the remote template persistence the engine drives.
type TemplateStore interface {
	GetTemplate(ctx context.Context, guildID string, id int64) (*domain.Template, error)
	ListTemplates(ctx context.Context, guildID string) ([]domain.TemplateSummary, error)
	SaveStructure(ctx context.Context, guildID string, id int64, payload domain.StructurePayload) (domain.SaveResult, error)
	CreateFromStructure(ctx context.Context, guildID string, req domain.ForkRequest) (int64, error)
	UpdateMetadata(ctx context.Context, guildID string, id int64, name, description string) error
	Activate(ctx context.Context, guildID string, id int64) error
	Delete(ctx context.Context, guildID string, id int64) error
	DeleteShared(ctx context.Context, sharedID int64) error
	Share(ctx context.Context, guildID string, id int64) (domain.ShareResult, error)
	CopyShared(ctx context.Context, guildID string, sharedID int64, newName string) (int64, error)
}

// State is the observable phase of the engine.
type State string

const (
	StateClean               State = "clean"
	StateDirty               State = "dirty"
	StateSaving              State = "saving"
	StateConflictPendingFork State = "conflict_pending_fork"
	StateForking             State = "forking"
	StateActivating          State = "activating"
	StateDeleting            State = "deleting"
)

var (
	// ErrBusy rejects an action whose previous invocation has not completed.
	ErrBusy = domain.NewError(domain.ErrCodeConflict, "action already in progress")
	// ErrNothingLoaded rejects structure writes while the editor is empty.
	ErrNothingLoaded = domain.NewError(domain.ErrCodeInvalid, "no template loaded")
	// ErrForkRequired reports a save that was refused and turned into a save-as-new prompt.
	ErrForkRequired = domain.NewError(domain.ErrCodeForbidden, "template is protected, save as new")
)

// Config tunes the engine.
type Config struct {
	GuildID string
	// RequestTimeout bounds store calls triggered from the bus.
	RequestTimeout time.Duration
	// Now is the clock used for suggested fork names.
	Now func() time.Time
}

// Engine is the only component that talks to the template store.
type Engine struct {
	store   TemplateStore
	model   *structure.Model
	session *session.State
	bus     *eventbus.Bus
	logger  *zap.Logger
	cfg     Config

	mu          sync.Mutex
	inflight    map[events.Control]bool
	pendingFork bool

	unsubscribe []func()
}

// New builds the engine and subscribes it to the user intents it serves.
func New(store TemplateStore, model *structure.Model, sess *session.State, bus *eventbus.Bus, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	e := &Engine{
		store:    store,
		model:    model,
		session:  sess,
		bus:      bus,
		logger:   logger.Named("syncengine").With(zap.String("guild_id", cfg.GuildID)),
		cfg:      cfg,
		inflight: make(map[events.Control]bool),
	}

	e.unsubscribe = append(e.unsubscribe,
		eventbus.On(bus, events.RequestSave, func(events.RequestSaveEvent) {
			e.run(func(ctx context.Context) error { return e.Save(ctx) })
		}),
		eventbus.On(bus, events.RequestLoadTemplate, func(ev events.RequestLoadTemplateEvent) {
			e.run(func(ctx context.Context) error { return e.Load(ctx, ev.TemplateID) })
		}),
		eventbus.On(bus, events.SaveAsNewConfirmed, func(ev events.SaveAsNewConfirmedEvent) {
			e.run(func(ctx context.Context) error { return e.Fork(ctx, ev.NewName, ev.NewDescription) })
		}),
		eventbus.On(bus, events.SaveAsNewCancelled, func(events.SaveAsNewCancelledEvent) {
			e.CancelFork()
		}),
		eventbus.On(bus, events.ActivateConfirmed, func(ev events.ActivateConfirmedEvent) {
			e.run(func(ctx context.Context) error { return e.Activate(ctx, ev.TemplateID) })
		}),
		eventbus.On(bus, events.DeleteConfirmed, func(ev events.DeleteConfirmedEvent) {
			e.run(func(ctx context.Context) error { return e.Delete(ctx, ev.TemplateID, ev.ListType) })
		}),
		eventbus.On(bus, events.ShareConfirmed, func(ev events.ShareConfirmedEvent) {
			e.run(func(ctx context.Context) error {
				_, err := e.Share(ctx, ev.TemplateID)
				return err
			})
		}),
		eventbus.On(bus, events.RequestCopyShared, func(ev events.RequestCopySharedEvent) {
			e.run(func(ctx context.Context) error {
				_, err := e.CopyShared(ctx, ev.SharedTemplateID, ev.NewName)
				return err
			})
		}),
		eventbus.On(bus, events.RequestRenameTemplate, func(ev events.RequestRenameTemplateEvent) {
			e.run(func(ctx context.Context) error { return e.Rename(ctx, ev.TemplateID, ev.Name, ev.Description) })
		}),
	)
	return e
}

// Close detaches the engine from the bus.
func (e *Engine) Close() {
	for _, off := range e.unsubscribe {
		off()
	}
	e.unsubscribe = nil
}

// run executes a bus-triggered action. Failures were already reported as notifications.
func (e *Engine) run(action func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	defer cancel()
	if err := action(ctx); err != nil {
		e.logger.Debug("action finished with error", zap.Error(err))
	}
}

// State reports the current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.inflight[events.ControlSaveAsNew]:
		return StateForking
	case e.inflight[events.ControlSave]:
		return StateSaving
	case e.inflight[events.ControlActivate]:
		return StateActivating
	case e.inflight[events.ControlDelete]:
		return StateDeleting
	case e.pendingFork:
		return StateConflictPendingFork
	case e.session.IsDirty():
		return StateDirty
	default:
		return StateClean
	}
}

// begin marks control busy. The returned release must run on every exit path.
func (e *Engine) begin(control events.Control) (func(), error) {
	e.mu.Lock()
	if e.inflight[control] {
		e.mu.Unlock()
		e.logger.Debug("action ignored while in flight", zap.String("control", string(control)))
		return nil, ErrBusy
	}
	e.inflight[control] = true
	e.mu.Unlock()

	eventbus.Emit(e.bus, events.ControlState, events.ControlStateEvent{Control: control, Busy: true})
	return func() {
		e.mu.Lock()
		delete(e.inflight, control)
		e.mu.Unlock()
		eventbus.Emit(e.bus, events.ControlState, events.ControlStateEvent{Control: control, Busy: false})
	}, nil
}

func (e *Engine) setPendingFork(pending bool) {
	e.mu.Lock()
	e.pendingFork = pending
	e.mu.Unlock()
}

func (e *Engine) notify(level events.Level, format string, args ...any) {
	eventbus.Emit(e.bus, events.Notification, events.NotificationEvent{Level: level, Message: fmt.Sprintf(format, args...)})
}

// ForkName is the suggested name of a forced save-as-new.
func ForkName(name string, now time.Time) string {
	return fmt.Sprintf("Copy of %s - %s", name, now.UTC().Format("2006-01-02"))
}

// Start mirrors the guild's active pointer and loads the active template, falling back to
// the initial snapshot when nothing is active.
func (e *Engine) Start(ctx context.Context) error {
	list, err := e.store.ListTemplates(ctx, e.cfg.GuildID)
	if err != nil {
		e.notify(events.LevelError, "Could not list templates: %v", err)
		return err
	}

	var active, snapshot int64
	for _, item := range list {
		if item.IsActive {
			active = item.ID
		}
		if item.IsInitialSnapshot {
			snapshot = item.ID
		}
	}
	e.session.SetActiveTemplateID(active)

	target := active
	if target == 0 {
		target = snapshot
	}
	if target == 0 {
		e.logger.Info("guild has no template to load")
		return nil
	}
	return e.Load(ctx, target)
}

// Load fetches a template and hands it to the editor. Unsaved edits are discarded.
func (e *Engine) Load(ctx context.Context, id int64) error {
	release, err := e.begin(events.ControlLoad)
	if err != nil {
		return err
	}
	defer release()

	if e.session.IsDirty() {
		e.logger.Warn("discarding unsaved changes", zap.Int64("template_id", e.session.LoadedID()))
	}

	tpl, err := e.store.GetTemplate(ctx, e.cfg.GuildID, id)
	if err != nil {
		e.logger.Error("load template failed", zap.Int64("template_id", id), zap.Error(err))
		e.notify(events.LevelError, "Could not load template: %v", err)
		return err
	}

	e.setPendingFork(false)
	eventbus.Emit(e.bus, events.LoadTemplateData, events.LoadTemplateDataEvent{TemplateData: tpl})
	return nil
}

// NewTemplate opens an empty, never-saved template. Its first save goes through save-as-new.
func (e *Engine) NewTemplate(name string) {
	e.setPendingFork(false)
	eventbus.Emit(e.bus, events.LoadTemplateData, events.LoadTemplateDataEvent{TemplateData: &domain.Template{
		GuildID: e.cfg.GuildID,
		Name:    name,
	}})
	e.session.SetDirty(true, "new template")
}

// Save persists the loaded structure in place. A permission refusal switches the engine to
// ConflictPendingFork and emits exactly one forced save-as-new prompt.
func (e *Engine) Save(ctx context.Context) error {
	release, err := e.begin(events.ControlSave)
	if err != nil {
		return err
	}
	defer release()

	if !e.model.Loaded() {
		e.notify(events.LevelWarning, "Nothing to save")
		return ErrNothingLoaded
	}

	snap := e.session.Snapshot()
	id := e.model.TemplateID()
	if id == 0 {
		e.setPendingFork(true)
		eventbus.Emit(e.bus, events.SaveAsNewRequested, events.SaveAsNewRequestedEvent{
			SuggestedName:        e.loadedName(snap),
			SuggestedDescription: e.loadedDescription(snap),
		})
		return nil
	}

	payload, err := e.model.SerializeForSave(id)
	if err != nil {
		e.logger.Error("serialize structure failed", zap.Int64("template_id", id), zap.Error(err))
		e.notify(events.LevelError, "Structure is inconsistent, save aborted: %v", err)
		return err
	}

	logger := e.logger.With(zap.Int64("template_id", id), zap.Int("nodes", len(payload.Nodes)))
	logger.Debug("saving structure")

	result, err := e.store.SaveStructure(ctx, e.cfg.GuildID, id, payload)
	if err != nil {
		if domain.IsPermissionDenied(err) {
			logger.Info("save refused, fork required", zap.Error(err))
			e.setPendingFork(true)
			e.session.SetDirty(true, "save refused")
			eventbus.Emit(e.bus, events.SaveAsNewRequested, events.SaveAsNewRequestedEvent{
				SuggestedName:        ForkName(e.loadedName(snap), e.cfg.Now()),
				SuggestedDescription: e.loadedDescription(snap),
				Forced:               true,
			})
			e.notify(events.LevelWarning, "This template is protected. Save your changes as a new template.")
			return fmt.Errorf("%w: %v", ErrForkRequired, err)
		}
		logger.Error("save structure failed", zap.Error(err))
		e.notify(events.LevelError, "Save failed: %v", err)
		return err
	}

	e.model.ResolveProvisional(result.IDMap)
	e.model.ClearPending()
	eventbus.Emit(e.bus, events.StructureSaved, events.StructureSavedEvent{})
	logger.Info("structure saved", zap.Int("resolved", len(result.IDMap)))
	e.notify(events.LevelSuccess, "Template saved")
	return nil
}

// CancelFork abandons a pending save-as-new. Local edits stay dirty.
func (e *Engine) CancelFork() {
	e.mu.Lock()
	pending := e.pendingFork
	e.pendingFork = false
	e.mu.Unlock()

	if pending {
		e.logger.Info("save as new cancelled")
		e.notify(events.LevelInfo, "Changes were not saved")
	}
}

// Fork creates a new template from the in-memory structure and switches the editor to it.
func (e *Engine) Fork(ctx context.Context, name, description string) error {
	release, err := e.begin(events.ControlSaveAsNew)
	if err != nil {
		return err
	}
	defer release()

	if !e.model.Loaded() {
		e.notify(events.LevelWarning, "Nothing to save")
		return ErrNothingLoaded
	}
	if name == "" {
		e.notify(events.LevelWarning, "A template name is required")
		return domain.NewError(domain.ErrCodeInvalid, "template name is required")
	}

	payload, err := e.model.SerializeForSave(e.model.TemplateID())
	if err != nil {
		e.logger.Error("serialize structure failed", zap.Error(err))
		e.notify(events.LevelError, "Structure is inconsistent, save aborted: %v", err)
		return err
	}

	newID, err := e.store.CreateFromStructure(ctx, e.cfg.GuildID, domain.ForkRequest{
		NewName:        name,
		NewDescription: description,
		Structure:      payload,
	})
	if err != nil {
		e.logger.Error("create from structure failed", zap.String("name", name), zap.Error(err))
		e.notify(events.LevelError, "Save as new failed: %v", err)
		return err
	}
	e.setPendingFork(false)

	// The fork assigns fresh ids to every node, so the editor reloads the stored copy. If
	// that fails the source closes rather than keep ids the fork does not own.
	tpl, err := e.store.GetTemplate(ctx, e.cfg.GuildID, newID)
	if err != nil {
		e.logger.Warn("reload after fork failed, closing editor", zap.Int64("template_id", newID), zap.Error(err))
		eventbus.Emit(e.bus, events.TemplateUnloaded, events.TemplateUnloadedEvent{TemplateID: e.model.TemplateID()})
	} else {
		eventbus.Emit(e.bus, events.LoadTemplateData, events.LoadTemplateDataEvent{TemplateData: tpl})
	}

	eventbus.Emit(e.bus, events.StructureSaved, events.StructureSavedEvent{IsNew: true, NewTemplateID: newID})
	e.logger.Info("template forked", zap.Int64("template_id", newID), zap.String("name", name))
	if err != nil {
		e.notify(events.LevelWarning, "Saved as %q but it could not be opened, pick it from the template list", name)
		return nil
	}
	e.notify(events.LevelSuccess, "Saved as %q", name)
	return nil
}

// Activate makes id the guild's active template. Activating the active one is a no-op.
func (e *Engine) Activate(ctx context.Context, id int64) error {
	if id != 0 && id == e.session.ActiveTemplateID() {
		e.logger.Debug("template already active", zap.Int64("template_id", id))
		return nil
	}

	release, err := e.begin(events.ControlActivate)
	if err != nil {
		return err
	}
	defer release()

	if err := e.store.Activate(ctx, e.cfg.GuildID, id); err != nil {
		e.logger.Error("activate failed", zap.Int64("template_id", id), zap.Error(err))
		e.notify(events.LevelError, "Activation failed: %v", err)
		return err
	}

	eventbus.Emit(e.bus, events.TemplateActivated, events.TemplateActivatedEvent{ActivatedTemplateID: id})
	e.logger.Info("template activated", zap.Int64("template_id", id))
	e.notify(events.LevelSuccess, "Template activated")
	return nil
}

// Delete removes a guild template or a shared template.
func (e *Engine) Delete(ctx context.Context, id int64, list events.ListType) error {
	release, err := e.begin(events.ControlDelete)
	if err != nil {
		return err
	}
	defer release()

	switch list {
	case events.ListShared:
		err = e.store.DeleteShared(ctx, id)
	default:
		list = events.ListGuild
		err = e.store.Delete(ctx, e.cfg.GuildID, id)
	}
	if err != nil {
		e.logger.Error("delete failed", zap.Int64("template_id", id), zap.String("list", string(list)), zap.Error(err))
		e.notify(events.LevelError, "Delete failed: %v", err)
		return err
	}

	eventbus.Emit(e.bus, events.TemplateDeleted, events.TemplateDeletedEvent{TemplateID: id, ListType: list})
	if list == events.ListGuild {
		if id == e.session.ActiveTemplateID() {
			e.session.SetActiveTemplateID(0)
		}
		if id == e.session.LoadedID() {
			e.setPendingFork(false)
			eventbus.Emit(e.bus, events.TemplateUnloaded, events.TemplateUnloadedEvent{TemplateID: id})
		}
	}
	e.logger.Info("template deleted", zap.Int64("template_id", id), zap.String("list", string(list)))
	e.notify(events.LevelSuccess, "Template deleted")
	return nil
}

// Share publishes a guild template into the shared namespace.
func (e *Engine) Share(ctx context.Context, id int64) (domain.ShareResult, error) {
	release, err := e.begin(events.ControlShare)
	if err != nil {
		return domain.ShareResult{}, err
	}
	defer release()

	res, err := e.store.Share(ctx, e.cfg.GuildID, id)
	if err != nil {
		e.logger.Error("share failed", zap.Int64("template_id", id), zap.Error(err))
		e.notify(events.LevelError, "Share failed: %v", err)
		return domain.ShareResult{}, err
	}

	eventbus.Emit(e.bus, events.TemplateShared, events.TemplateSharedEvent{
		TemplateID:       id,
		SharedTemplateID: res.SharedTemplateID,
		ShareCode:        res.ShareCode,
	})
	e.logger.Info("template shared", zap.Int64("template_id", id), zap.String("share_code", res.ShareCode))
	e.notify(events.LevelSuccess, "Template shared, code %s", res.ShareCode)
	return res, nil
}

// CopyShared copies a shared template into the guild.
func (e *Engine) CopyShared(ctx context.Context, sharedID int64, newName string) (int64, error) {
	release, err := e.begin(events.ControlCopy)
	if err != nil {
		return 0, err
	}
	defer release()

	id, err := e.store.CopyShared(ctx, e.cfg.GuildID, sharedID, newName)
	if err != nil {
		e.logger.Error("copy shared failed", zap.Int64("shared_template_id", sharedID), zap.Error(err))
		e.notify(events.LevelError, "Copy failed: %v", err)
		return 0, err
	}

	eventbus.Emit(e.bus, events.SharedCopied, events.SharedCopiedEvent{SharedTemplateID: sharedID, NewTemplateID: id})
	e.logger.Info("shared template copied", zap.Int64("shared_template_id", sharedID), zap.Int64("template_id", id))
	e.notify(events.LevelSuccess, "Template copied to this guild")
	return id, nil
}

// Rename updates a template's name and description.
func (e *Engine) Rename(ctx context.Context, id int64, name, description string) error {
	release, err := e.begin(events.ControlRename)
	if err != nil {
		return err
	}
	defer release()

	if name == "" {
		e.notify(events.LevelWarning, "A template name is required")
		return domain.NewError(domain.ErrCodeInvalid, "template name is required")
	}

	if err := e.store.UpdateMetadata(ctx, e.cfg.GuildID, id, name, description); err != nil {
		e.logger.Error("rename failed", zap.Int64("template_id", id), zap.Error(err))
		if domain.IsPermissionDenied(err) {
			e.notify(events.LevelWarning, "This template cannot be renamed")
		} else {
			e.notify(events.LevelError, "Rename failed: %v", err)
		}
		return err
	}

	if id == e.model.TemplateID() && e.model.Loaded() {
		e.model.Rebind(id, name, description)
		e.session.SetCurrentTemplate(e.model.Snapshot())
	}
	eventbus.Emit(e.bus, events.TemplateRenamed, events.TemplateRenamedEvent{TemplateID: id, Name: name, Description: description})
	e.notify(events.LevelSuccess, "Template renamed")
	return nil
}

func (e *Engine) loadedName(snap session.Snapshot) string {
	if snap.Loaded != nil && snap.Loaded.Name != "" {
		return snap.Loaded.Name
	}
	return "Untitled"
}

func (e *Engine) loadedDescription(snap session.Snapshot) string {
	if snap.Loaded == nil {
		return ""
	}
	return snap.Loaded.Description
}

// IsBusy reports whether err is the in-flight guard rejection.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
