// Package events declares the named events exchanged between designer components.
// Components never reference each other directly; they only agree on these topics.
package events

import (
	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
)

// ListType discriminates which template list a row action originated from.
type ListType string

const (
	ListGuild  ListType = "guild"
	ListShared ListType = "shared"
)

// Control names a UI affordance whose enabled state the engine drives.
type Control string

const (
	ControlSave      Control = "save"
	ControlSaveAsNew Control = "save_as_new"
	ControlActivate  Control = "activate"
	ControlDelete    Control = "delete"
	ControlShare     Control = "share"
	ControlLoad      Control = "load"
	ControlRename    Control = "rename"
	ControlCopy      Control = "copy_shared"
)

// Level grades user notifications.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// StructureChangedEvent fires after a move or creation was applied to the model.
// OldParentID is zero for nodes created from the palette.
type StructureChangedEvent struct {
	NodeID      domain.NodeRef
	NewParentID domain.NodeRef
	NewPosition int
	OldParentID domain.NodeRef
	OldPosition int
}

// PropertyChangedEvent fires after a node property was edited.
type PropertyChangedEvent struct {
	NodeID domain.NodeRef
	Change domain.PropertyChange
}

// DropRejectedEvent fires when the tree rolls back a drop.
type DropRejectedEvent struct {
	NodeID   domain.NodeRef
	TargetID domain.NodeRef
	Reason   string
}

// StructureSavedEvent fires after a confirmed structure write or fork.
type StructureSavedEvent struct {
	IsNew         bool
	NewTemplateID int64
}

// RequestSaveEvent asks the engine to persist the loaded structure.
type RequestSaveEvent struct{}

// RequestLoadTemplateEvent asks the engine to fetch and load a template.
type RequestLoadTemplateEvent struct {
	TemplateID int64
}

// LoadTemplateDataEvent carries a freshly fetched template into the editor.
type LoadTemplateDataEvent struct {
	TemplateData *domain.Template
}

// TemplateUnloadedEvent fires when the loaded template disappeared from the store.
type TemplateUnloadedEvent struct {
	TemplateID int64
}

type RequestDeleteTemplateEvent struct {
	TemplateID   int64
	TemplateName string
	ListType     ListType
}

type DeleteConfirmedEvent struct {
	TemplateID int64
	ListType   ListType
}

// TemplateDeletedEvent fires after the store confirmed a deletion.
type TemplateDeletedEvent struct {
	TemplateID int64
	ListType   ListType
}

type RequestActivateTemplateEvent struct {
	TemplateID   int64
	TemplateName string
}

type ActivateConfirmedEvent struct {
	TemplateID int64
}

// TemplateActivatedEvent lets every template list move its "Active" badge without a refetch.
type TemplateActivatedEvent struct {
	ActivatedTemplateID int64
}

// SaveAsNewRequestedEvent opens the save-as-new prompt. Forced is set when the prompt
// is the fork-on-write fallback of a rejected save.
type SaveAsNewRequestedEvent struct {
	SuggestedName        string
	SuggestedDescription string
	Forced               bool
}

type SaveAsNewConfirmedEvent struct {
	NewName        string
	NewDescription string
}

type SaveAsNewCancelledEvent struct{}

type RequestShareTemplateEvent struct {
	TemplateID   int64
	TemplateName string
}

type ShareConfirmedEvent struct {
	TemplateID int64
}

type TemplateSharedEvent struct {
	TemplateID       int64
	SharedTemplateID int64
	ShareCode        string
}

type RequestCopySharedEvent struct {
	SharedTemplateID int64
	NewName          string
}

type SharedCopiedEvent struct {
	SharedTemplateID int64
	NewTemplateID    int64
}

type RequestRenameTemplateEvent struct {
	TemplateID  int64
	Name        string
	Description string
}

type TemplateRenamedEvent struct {
	TemplateID  int64
	Name        string
	Description string
}

// DesignerNodeSelectedEvent is the normalized selection emitted by the tree.
type DesignerNodeSelectedEvent struct {
	ID          domain.NodeRef
	Type        domain.NodeKind
	DBID        int64
	Name        string
	ChannelType domain.ChannelKind
}

// ControlStateEvent toggles a control while its action is in flight.
type ControlStateEvent struct {
	Control Control
	Busy    bool
}

// NotificationEvent is a transient user notification.
type NotificationEvent struct {
	Level   Level
	Message string
}

// Topics.
var (
	StructureChanged        = eventbus.NewTopic[StructureChangedEvent]("structureChanged")
	PropertyChanged         = eventbus.NewTopic[PropertyChangedEvent]("propertyChanged")
	DropRejected            = eventbus.NewTopic[DropRejectedEvent]("dropRejected")
	StructureSaved          = eventbus.NewTopic[StructureSavedEvent]("structureSaved")
	RequestSave             = eventbus.NewTopic[RequestSaveEvent]("requestSave")
	RequestLoadTemplate     = eventbus.NewTopic[RequestLoadTemplateEvent]("requestLoadTemplate")
	LoadTemplateData        = eventbus.NewTopic[LoadTemplateDataEvent]("loadTemplateData")
	TemplateUnloaded        = eventbus.NewTopic[TemplateUnloadedEvent]("templateUnloaded")
	RequestDeleteTemplate   = eventbus.NewTopic[RequestDeleteTemplateEvent]("requestDeleteTemplate")
	DeleteConfirmed         = eventbus.NewTopic[DeleteConfirmedEvent]("deleteConfirmed")
	TemplateDeleted         = eventbus.NewTopic[TemplateDeletedEvent]("templateDeleted")
	RequestActivateTemplate = eventbus.NewTopic[RequestActivateTemplateEvent]("requestActivateTemplate")
	ActivateConfirmed       = eventbus.NewTopic[ActivateConfirmedEvent]("activateConfirmed")
	TemplateActivated       = eventbus.NewTopic[TemplateActivatedEvent]("templateActivated")
	SaveAsNewRequested      = eventbus.NewTopic[SaveAsNewRequestedEvent]("saveAsNewRequested")
	SaveAsNewConfirmed      = eventbus.NewTopic[SaveAsNewConfirmedEvent]("saveAsNewConfirmed")
	SaveAsNewCancelled      = eventbus.NewTopic[SaveAsNewCancelledEvent]("saveAsNewCancelled")
	RequestShareTemplate    = eventbus.NewTopic[RequestShareTemplateEvent]("requestShareTemplate")
	ShareConfirmed          = eventbus.NewTopic[ShareConfirmedEvent]("shareConfirmed")
	TemplateShared          = eventbus.NewTopic[TemplateSharedEvent]("templateShared")
	RequestCopyShared       = eventbus.NewTopic[RequestCopySharedEvent]("requestCopyShared")
	SharedCopied            = eventbus.NewTopic[SharedCopiedEvent]("sharedCopied")
	RequestRenameTemplate   = eventbus.NewTopic[RequestRenameTemplateEvent]("requestRenameTemplate")
	TemplateRenamed         = eventbus.NewTopic[TemplateRenamedEvent]("templateRenamed")
	DesignerNodeSelected    = eventbus.NewTopic[DesignerNodeSelectedEvent]("designerNodeSelected")
	ControlState            = eventbus.NewTopic[ControlStateEvent]("controlState")
	Notification            = eventbus.NewTopic[NotificationEvent]("notification")
)
