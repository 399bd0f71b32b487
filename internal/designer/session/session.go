// Package session tracks which template is loaded in the designer, whether it diverges from
// its last persisted form, and which template is active for the guild.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
)

// Snapshot is a consistent read of the session flags.
type Snapshot struct {
	ActiveTemplateID int64
	Dirty            bool
	Loaded           *domain.Template
}

// LoadedID returns the id of the loaded template or zero.
func (s Snapshot) LoadedID() int64 {
	if s.Loaded == nil {
		return 0
	}
	return s.Loaded.ID
}

// CanActivate reports whether the toolbar "Activate" affordance is enabled.
func (s Snapshot) CanActivate() bool {
	if s.Dirty || s.Loaded == nil || !s.Loaded.Persisted() {
		return false
	}
	return s.Loaded.ID != s.ActiveTemplateID
}

// State is created once per editor session and shared by injection. It is only mutated
// through its setters, each of which logs the transition.
type State struct {
	mu     sync.RWMutex
	logger *zap.Logger

	activeTemplateID int64
	dirty            bool
	current          *domain.Template

	unsubscribe []func()
}

// New builds the session and wires its dirty state machine onto bus.
func New(bus *eventbus.Bus, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &State{logger: logger.Named("session")}
	if bus == nil {
		return s
	}

	s.unsubscribe = append(s.unsubscribe,
		eventbus.On(bus, events.StructureChanged, func(e events.StructureChangedEvent) {
			s.SetDirty(true, events.StructureChanged.Name())
		}),
		eventbus.On(bus, events.PropertyChanged, func(e events.PropertyChangedEvent) {
			s.SetDirty(true, events.PropertyChanged.Name())
		}),
		eventbus.On(bus, events.StructureSaved, func(e events.StructureSavedEvent) {
			s.SetDirty(false, events.StructureSaved.Name())
		}),
		eventbus.On(bus, events.TemplateActivated, func(e events.TemplateActivatedEvent) {
			s.SetActiveTemplateID(e.ActivatedTemplateID)
			if e.ActivatedTemplateID == s.LoadedID() {
				s.SetDirty(false, events.TemplateActivated.Name())
			}
		}),
		eventbus.On(bus, events.LoadTemplateData, func(e events.LoadTemplateDataEvent) {
			s.SetCurrentTemplate(e.TemplateData)
			s.SetDirty(false, events.LoadTemplateData.Name())
		}),
		eventbus.On(bus, events.TemplateUnloaded, func(e events.TemplateUnloadedEvent) {
			if e.TemplateID == s.LoadedID() {
				s.SetCurrentTemplate(nil)
				s.SetDirty(false, events.TemplateUnloaded.Name())
			}
		}),
	)
	return s
}

// Close detaches the session from the bus.
func (s *State) Close() {
	for _, off := range s.unsubscribe {
		off()
	}
	s.unsubscribe = nil
}

// Snapshot returns the current flags.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ActiveTemplateID: s.activeTemplateID,
		Dirty:            s.dirty,
		Loaded:           s.current.Clone(),
	}
}

func (s *State) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *State) ActiveTemplateID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTemplateID
}

func (s *State) LoadedID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// SetDirty records a dirty transition; reason names the trigger for the trace.
func (s *State) SetDirty(dirty bool, reason string) {
	s.mu.Lock()
	prev := s.dirty
	s.dirty = dirty
	s.mu.Unlock()

	if prev != dirty {
		s.logger.Debug("session dirty changed",
			zap.Bool("from", prev),
			zap.Bool("to", dirty),
			zap.String("reason", reason))
	}
}

// SetActiveTemplateID mirrors the server-side active pointer.
func (s *State) SetActiveTemplateID(id int64) {
	s.mu.Lock()
	prev := s.activeTemplateID
	s.activeTemplateID = id
	s.mu.Unlock()

	if prev != id {
		s.logger.Info("active template changed", zap.Int64("from", prev), zap.Int64("to", id))
	}
}

// SetCurrentTemplate records the loaded template metadata; nil unloads it.
func (s *State) SetCurrentTemplate(t *domain.Template) {
	loaded := t.Clone()

	s.mu.Lock()
	var prev int64
	if s.current != nil {
		prev = s.current.ID
	}
	s.current = loaded
	s.mu.Unlock()

	if loaded == nil {
		s.logger.Info("template unloaded", zap.Int64("template_id", prev))
		return
	}
	s.logger.Info("template loaded",
		zap.Int64("from", prev),
		zap.Int64("template_id", loaded.ID),
		zap.String("name", loaded.Name),
		zap.Bool("initial_snapshot", loaded.IsInitialSnapshot))
}
