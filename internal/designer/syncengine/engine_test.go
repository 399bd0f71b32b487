package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/session"
	"github.com/fastygo/guild-designer/internal/designer/structure"
	"github.com/fastygo/guild-designer/internal/designer/tree"
)

const guild = "g1"

type fakeStore struct {
	mu        sync.Mutex
	templates map[int64]*domain.Template
	active    int64
	nextID    int64
	saves     []domain.StructurePayload
	forks     []domain.ForkRequest
	failSave  error
	failGet   error
	block     chan struct{}
}

func newFakeStore() *fakeStore {
	parent := int64(1)
	return &fakeStore{
		nextID: 100,
		active: 5,
		templates: map[int64]*domain.Template{
			1: {ID: 1, GuildID: guild, Name: "Snapshot", IsInitialSnapshot: true,
				Categories: []domain.Category{{ID: 1, Name: "General"}},
				Channels:   []domain.Channel{{ID: 10, Name: "chat", Kind: domain.ChannelText, ParentCategoryID: &parent}},
			},
			5: {ID: 5, GuildID: guild, Name: "T1",
				Categories: []domain.Category{{ID: 3, Name: "Main"}},
				Channels:   []domain.Channel{{ID: 30, Name: "lobby", Kind: domain.ChannelText}},
			},
		},
	}
}

func (f *fakeStore) GetTemplate(_ context.Context, _ string, id int64) (*domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	t, ok := f.templates[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return t.Clone(), nil
}

func (f *fakeStore) ListTemplates(_ context.Context, _ string) ([]domain.TemplateSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TemplateSummary
	for _, t := range f.templates {
		out = append(out, t.Summary(f.active))
	}
	return out, nil
}

func (f *fakeStore) SaveStructure(_ context.Context, _ string, id int64, payload domain.StructurePayload) (domain.SaveResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, payload)
	if f.failSave != nil {
		return domain.SaveResult{}, f.failSave
	}
	t, ok := f.templates[id]
	if !ok {
		return domain.SaveResult{}, domain.ErrTemplateNotFound
	}
	if t.IsInitialSnapshot {
		return domain.SaveResult{}, domain.ErrInitialSnapshotLocked
	}
	idMap := map[string]int64{}
	for _, n := range payload.Nodes {
		if n.ID.Provisional() {
			f.nextID++
			idMap[n.ID.String()] = f.nextID
		}
	}
	return domain.SaveResult{IDMap: idMap}, nil
}

func (f *fakeStore) CreateFromStructure(_ context.Context, _ string, req domain.ForkRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forks = append(f.forks, req)
	tpl, err := domain.TemplateFromStructure(0, req.Structure)
	if err != nil {
		return 0, err
	}
	f.nextID++
	tpl.ID = f.nextID
	tpl.GuildID = guild
	tpl.Name = req.NewName
	tpl.Description = req.NewDescription
	for i := range tpl.Categories {
		tpl.Categories[i].ID += 1000
	}
	for i := range tpl.Channels {
		tpl.Channels[i].ID += 2000
		if p := tpl.Channels[i].ParentCategoryID; p != nil {
			np := *p + 1000
			tpl.Channels[i].ParentCategoryID = &np
		}
	}
	f.templates[tpl.ID] = tpl
	return tpl.ID, nil
}

func (f *fakeStore) UpdateMetadata(_ context.Context, _ string, id int64, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.templates[id]
	if !ok {
		return domain.ErrTemplateNotFound
	}
	if t.IsInitialSnapshot {
		return domain.ErrInitialSnapshotLocked
	}
	t.Name, t.Description = name, description
	return nil
}

func (f *fakeStore) Activate(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.templates[id]; !ok {
		return domain.ErrTemplateNotFound
	}
	f.active = id
	return nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.templates[id]
	if !ok {
		return domain.ErrTemplateNotFound
	}
	if t.IsInitialSnapshot {
		return domain.ErrInitialSnapshotLocked
	}
	delete(f.templates, id)
	if f.active == id {
		f.active = 0
	}
	return nil
}

func (f *fakeStore) DeleteShared(context.Context, int64) error { return nil }

func (f *fakeStore) Share(_ context.Context, _ string, id int64) (domain.ShareResult, error) {
	return domain.ShareResult{SharedTemplateID: 900 + id, ShareCode: "abc"}, nil
}

func (f *fakeStore) CopyShared(_ context.Context, _ string, sharedID int64, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.templates[f.nextID] = &domain.Template{ID: f.nextID, GuildID: guild, Name: "copy"}
	return f.nextID, nil
}

type harness struct {
	bus     *eventbus.Bus
	model   *structure.Model
	session *session.State
	engine  *Engine
	store   *fakeStore

	saved     []events.StructureSavedEvent
	prompts   []events.SaveAsNewRequestedEvent
	activated []events.TemplateActivatedEvent
	unloaded  []events.TemplateUnloadedEvent
	controls  []events.ControlStateEvent
	notes     []events.NotificationEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{bus: eventbus.New(nil), model: structure.New(), store: newFakeStore()}
	h.session = session.New(h.bus, nil)
	tree.NewAdapter(h.model, tree.NewHeadless(), h.bus, nil)
	h.engine = New(h.store, h.model, h.session, h.bus, Config{
		GuildID: guild,
		Now:     func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) },
	}, nil)

	eventbus.On(h.bus, events.StructureSaved, func(e events.StructureSavedEvent) { h.saved = append(h.saved, e) })
	eventbus.On(h.bus, events.SaveAsNewRequested, func(e events.SaveAsNewRequestedEvent) { h.prompts = append(h.prompts, e) })
	eventbus.On(h.bus, events.TemplateActivated, func(e events.TemplateActivatedEvent) { h.activated = append(h.activated, e) })
	eventbus.On(h.bus, events.TemplateUnloaded, func(e events.TemplateUnloadedEvent) { h.unloaded = append(h.unloaded, e) })
	eventbus.On(h.bus, events.ControlState, func(e events.ControlStateEvent) { h.controls = append(h.controls, e) })
	eventbus.On(h.bus, events.Notification, func(e events.NotificationEvent) { h.notes = append(h.notes, e) })

	require.NoError(t, h.engine.Start(context.Background()))
	return h
}

// move drags node to the root channel group, which always dirties the session.
func (h *harness) move(t *testing.T, node domain.NodeRef) {
	t.Helper()
	mv, err := h.model.ApplyMove(node, h.model.Root(), 0)
	require.NoError(t, err)
	eventbus.Emit(h.bus, events.StructureChanged, events.StructureChangedEvent{
		NodeID: mv.Node, NewParentID: mv.NewParent, NewPosition: mv.NewPosition,
		OldParentID: mv.OldParent, OldPosition: mv.OldPosition,
	})
}

func TestStartLoadsActiveTemplate(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, int64(5), h.session.ActiveTemplateID())
	assert.Equal(t, int64(5), h.session.LoadedID())
	assert.Equal(t, int64(5), h.model.TemplateID())
	assert.Equal(t, StateClean, h.engine.State())
}

func TestSaveOwnedTemplate(t *testing.T) {
	h := newHarness(t)
	h.move(t, domain.ChannelRef(30))
	_, err := h.model.Insert(domain.NodeCategory, h.model.Root(), 1, "Extra", "")
	require.NoError(t, err)
	require.True(t, h.session.IsDirty())
	assert.Equal(t, StateDirty, h.engine.State())

	eventbus.Emit(h.bus, events.RequestSave, events.RequestSaveEvent{})

	require.Len(t, h.saved, 1)
	assert.False(t, h.saved[0].IsNew)
	assert.False(t, h.session.IsDirty())
	assert.Equal(t, StateClean, h.engine.State())
	require.Len(t, h.store.saves, 1)
	assert.Equal(t, "template_5", h.store.saves[0].Nodes[0].ParentID.String())

	_, ok := h.model.Lookup(domain.CategoryRef(101))
	assert.True(t, ok, "provisional category rebound to the stored id")
	assert.Empty(t, h.prompts)

	assert.Equal(t, []events.ControlStateEvent{
		{Control: events.ControlSave, Busy: true},
		{Control: events.ControlSave, Busy: false},
	}, h.controls[len(h.controls)-2:])
}

func TestSaveInitialSnapshotRequestsFork(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Load(context.Background(), 1))
	h.move(t, domain.ChannelRef(10))

	err := h.engine.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForkRequired)
	assert.True(t, domain.IsPermissionDenied(err))

	assert.Empty(t, h.saved)
	assert.True(t, h.session.IsDirty())
	assert.Equal(t, int64(5), h.session.ActiveTemplateID())
	assert.Equal(t, StateConflictPendingFork, h.engine.State())
	require.Len(t, h.prompts, 1)
	assert.True(t, h.prompts[0].Forced)
	assert.Equal(t, "Copy of Snapshot - 2026-03-14", h.prompts[0].SuggestedName)
}

func TestForkAfterConflict(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Load(context.Background(), 1))
	h.move(t, domain.ChannelRef(10))
	require.Error(t, h.engine.Save(context.Background()))

	eventbus.Emit(h.bus, events.SaveAsNewConfirmed, events.SaveAsNewConfirmedEvent{NewName: "Mine", NewDescription: "fork"})

	require.Len(t, h.saved, 1)
	assert.True(t, h.saved[0].IsNew)
	newID := h.saved[0].NewTemplateID
	assert.Equal(t, int64(101), newID)
	assert.Equal(t, newID, h.session.LoadedID())
	assert.Equal(t, newID, h.model.TemplateID())
	assert.False(t, h.session.IsDirty())
	assert.Equal(t, StateClean, h.engine.State())

	require.Len(t, h.store.forks, 1)
	assert.Equal(t, "Mine", h.store.forks[0].NewName)
	assert.Equal(t, "template_1", h.store.forks[0].Structure.Nodes[0].ParentID.String())

	// the reloaded copy carries the ids assigned by the store
	_, ok := h.model.Lookup(domain.ChannelRef(2010))
	assert.True(t, ok)
}

func TestForkWithoutReloadClosesSource(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Load(context.Background(), 1))
	h.move(t, domain.ChannelRef(10))
	require.Error(t, h.engine.Save(context.Background()))

	h.store.failGet = domain.NewError(domain.ErrCodeUnavailable, "store down")
	require.NoError(t, h.engine.Fork(context.Background(), "Mine", ""))

	require.Len(t, h.store.forks, 1)
	assert.Equal(t, []events.TemplateUnloadedEvent{{TemplateID: 1}}, h.unloaded)
	assert.False(t, h.model.Loaded())
	assert.Zero(t, h.session.LoadedID())
	assert.False(t, h.session.IsDirty())
	assert.Equal(t, StateClean, h.engine.State())

	require.Len(t, h.saved, 1)
	assert.Equal(t, int64(101), h.saved[0].NewTemplateID)
	assert.Equal(t, events.LevelWarning, h.notes[len(h.notes)-1].Level)

	// nothing stale is left to save under the fork's id
	assert.ErrorIs(t, h.engine.Save(context.Background()), ErrNothingLoaded)
	assert.Empty(t, h.store.saves)
}

func TestCancelForkKeepsDirty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Load(context.Background(), 1))
	h.move(t, domain.ChannelRef(10))
	require.Error(t, h.engine.Save(context.Background()))

	eventbus.Emit(h.bus, events.SaveAsNewCancelled, events.SaveAsNewCancelledEvent{})

	assert.Equal(t, StateDirty, h.engine.State())
	assert.True(t, h.session.IsDirty())
	assert.Empty(t, h.saved)
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	h := newHarness(t)
	h.move(t, domain.ChannelRef(30))
	h.store.failSave = domain.NewError(domain.ErrCodeUnavailable, "store down")

	err := h.engine.Save(context.Background())
	require.Error(t, err)

	assert.True(t, h.session.IsDirty())
	assert.Empty(t, h.saved)
	assert.Empty(t, h.prompts)
	assert.Equal(t, events.LevelError, h.notes[len(h.notes)-1].Level)
	assert.Equal(t, StateDirty, h.engine.State())
}

func TestSaveRejectsConcurrentInvocation(t *testing.T) {
	h := newHarness(t)
	h.move(t, domain.ChannelRef(30))
	h.store.block = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.engine.Save(context.Background()) }()

	require.Eventually(t, func() bool { return h.engine.State() == StateSaving }, time.Second, time.Millisecond)
	err := h.engine.Save(context.Background())
	assert.True(t, IsBusy(err))

	close(h.store.block)
	require.NoError(t, <-done)
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	assert.Len(t, h.store.saves, 1)
}

func TestActivate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Load(context.Background(), 1))
	assert.True(t, h.session.Snapshot().CanActivate())

	eventbus.Emit(h.bus, events.ActivateConfirmed, events.ActivateConfirmedEvent{TemplateID: 1})

	require.Len(t, h.activated, 1)
	assert.Equal(t, int64(1), h.session.ActiveTemplateID())
	assert.False(t, h.session.Snapshot().CanActivate())

	// already active: no second call, no second event
	require.NoError(t, h.engine.Activate(context.Background(), 1))
	assert.Len(t, h.activated, 1)
}

func TestDeleteLoadedTemplateUnloadsIt(t *testing.T) {
	h := newHarness(t)

	var deleted []events.TemplateDeletedEvent
	eventbus.On(h.bus, events.TemplateDeleted, func(e events.TemplateDeletedEvent) { deleted = append(deleted, e) })

	eventbus.Emit(h.bus, events.DeleteConfirmed, events.DeleteConfirmedEvent{TemplateID: 5, ListType: events.ListGuild})

	require.Len(t, deleted, 1)
	assert.Equal(t, events.ListGuild, deleted[0].ListType)
	require.Len(t, h.unloaded, 1)
	assert.Zero(t, h.session.LoadedID())
	assert.Zero(t, h.session.ActiveTemplateID())
	assert.False(t, h.model.Loaded())
}

func TestDeleteInitialSnapshotIsRefused(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Delete(context.Background(), 1, events.ListGuild)
	assert.True(t, domain.IsPermissionDenied(err))
	assert.Empty(t, h.unloaded)
	assert.Equal(t, events.LevelError, h.notes[len(h.notes)-1].Level)
}

func TestRenameUpdatesLoadedTemplate(t *testing.T) {
	h := newHarness(t)

	eventbus.Emit(h.bus, events.RequestRenameTemplate, events.RequestRenameTemplateEvent{TemplateID: 5, Name: "Renamed"})

	assert.Equal(t, "Renamed", h.session.Snapshot().Loaded.Name)
	assert.Equal(t, "Renamed", h.store.templates[5].Name)
}

func TestNewTemplateSavesThroughPrompt(t *testing.T) {
	h := newHarness(t)
	h.engine.NewTemplate("Fresh")
	_, err := h.model.Insert(domain.NodeCategory, h.model.Root(), 0, "General", "")
	require.NoError(t, err)

	require.NoError(t, h.engine.Save(context.Background()))
	require.Len(t, h.prompts, 1)
	assert.False(t, h.prompts[0].Forced)
	assert.Equal(t, "Fresh", h.prompts[0].SuggestedName)
	assert.Equal(t, StateConflictPendingFork, h.engine.State())

	require.NoError(t, h.engine.Fork(context.Background(), "Fresh", ""))
	require.Len(t, h.saved, 1)
	assert.True(t, h.saved[0].IsNew)
	assert.False(t, h.session.IsDirty())
}

func TestShareAndCopy(t *testing.T) {
	h := newHarness(t)

	var shared []events.TemplateSharedEvent
	var copied []events.SharedCopiedEvent
	eventbus.On(h.bus, events.TemplateShared, func(e events.TemplateSharedEvent) { shared = append(shared, e) })
	eventbus.On(h.bus, events.SharedCopied, func(e events.SharedCopiedEvent) { copied = append(copied, e) })

	eventbus.Emit(h.bus, events.ShareConfirmed, events.ShareConfirmedEvent{TemplateID: 5})
	require.Len(t, shared, 1)
	assert.Equal(t, int64(905), shared[0].SharedTemplateID)

	eventbus.Emit(h.bus, events.RequestCopyShared, events.RequestCopySharedEvent{SharedTemplateID: 905})
	require.Len(t, copied, 1)
	assert.Equal(t, int64(101), copied[0].NewTemplateID)
}

func TestForkName(t *testing.T) {
	assert.Equal(t, "Copy of T - 2024-01-02", ForkName("T", time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC)))
}
