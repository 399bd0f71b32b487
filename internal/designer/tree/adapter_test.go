package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/structure"
)

type recorder struct {
	changed  []events.StructureChangedEvent
	rejected []events.DropRejectedEvent
	selected []events.DesignerNodeSelectedEvent
}

func setup(t *testing.T) (*structure.Model, *Headless, *recorder) {
	t.Helper()
	bus := eventbus.New(nil)
	model := structure.New()
	widget := NewHeadless()
	NewAdapter(model, widget, bus, nil)

	rec := &recorder{}
	eventbus.On(bus, events.StructureChanged, func(e events.StructureChangedEvent) { rec.changed = append(rec.changed, e) })
	eventbus.On(bus, events.DropRejected, func(e events.DropRejectedEvent) { rec.rejected = append(rec.rejected, e) })
	eventbus.On(bus, events.DesignerNodeSelected, func(e events.DesignerNodeSelectedEvent) { rec.selected = append(rec.selected, e) })

	parent := int64(1)
	eventbus.Emit(bus, events.LoadTemplateData, events.LoadTemplateDataEvent{TemplateData: &domain.Template{
		ID:   5,
		Name: "T1",
		Categories: []domain.Category{
			{ID: 1, Name: "General", Position: 0},
			{ID: 2, Name: "Voice", Position: 1},
		},
		Channels: []domain.Channel{
			{ID: 10, Name: "chat", Kind: domain.ChannelText, ParentCategoryID: &parent, Position: 0},
			{ID: 11, Name: "lobby", Kind: domain.ChannelText, Position: 0},
		},
	}})
	return model, widget, rec
}

func ids(nodes []*WidgetNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestBuildNodesOrdersChannelsBeforeCategories(t *testing.T) {
	_, widget, _ := setup(t)

	forest := widget.Nodes()
	require.Len(t, forest, 1)
	root := forest[0]
	assert.Equal(t, "template_5", root.ID)
	assert.Equal(t, RootParent, root.Parent)
	assert.Equal(t, []string{"channel_11", "category_1", "category_2"}, ids(root.Children))
	assert.Equal(t, []string{"channel_10"}, ids(root.Children[1].Children))
	assert.Equal(t, "channel-text", root.Children[1].Children[0].Type)
	assert.Equal(t, "category_1", root.Children[1].Children[0].Parent)
}

func TestPaletteCategoryOnCategoryIsRejected(t *testing.T) {
	model, widget, rec := setup(t)
	before, err := model.SerializeForSave(5)
	require.NoError(t, err)
	renders := widget.Renders()

	widget.Drop(Drop{Origin: OriginPalette, Item: PaletteCategory, ParentID: "category_1", Position: 0})

	assert.Empty(t, rec.changed)
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, domain.CategoryRef(1), rec.rejected[0].TargetID)
	assert.Greater(t, widget.Renders(), renders, "widget is rolled back")

	after, err := model.SerializeForSave(5)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPaletteDropTargets(t *testing.T) {
	tests := []struct {
		name   string
		item   PaletteItem
		parent string
		ok     bool
	}{
		{name: "category on root", item: PaletteCategory, parent: "template_5", ok: true},
		{name: "channel on root", item: PaletteChannel, parent: "template_5", ok: true},
		{name: "channel on category", item: PaletteChannel, parent: "category_2", ok: true},
		{name: "channel on channel", item: PaletteChannel, parent: "channel_11"},
		{name: "category on channel", item: PaletteCategory, parent: "channel_10"},
		{name: "garbage target", item: PaletteChannel, parent: "#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, widget, rec := setup(t)
			widget.Drop(Drop{Origin: OriginPalette, Item: tt.item, ParentID: tt.parent})
			if tt.ok {
				require.Len(t, rec.changed, 1)
				assert.True(t, rec.changed[0].NodeID.Provisional())
				assert.True(t, rec.changed[0].OldParentID.IsZero())
				assert.Empty(t, rec.rejected)
				return
			}
			assert.Empty(t, rec.changed)
			assert.Len(t, rec.rejected, 1)
		})
	}
}

func TestPaletteCategoryDisplayedPositionMapsToGroup(t *testing.T) {
	model, widget, rec := setup(t)

	// Displayed root children: [channel_11, category_1, category_2]; index 2 sits between
	// the two categories.
	widget.Drop(Drop{Origin: OriginPalette, Item: PaletteCategory, ParentID: "template_5", Position: 2})
	require.Len(t, rec.changed, 1)
	assert.Equal(t, 1, rec.changed[0].NewPosition)

	children, err := model.ListChildrenOf(domain.TemplateRef(5))
	require.NoError(t, err)
	assert.Equal(t, "new-category", children[1].Name)
}

func TestExistingNodeMoveEmitsStructureChanged(t *testing.T) {
	_, widget, rec := setup(t)

	widget.Drop(Drop{Origin: OriginTree, NodeID: "channel_10", ParentID: "template_5", Position: 0})

	require.Len(t, rec.changed, 1)
	assert.Equal(t, events.StructureChangedEvent{
		NodeID:      domain.ChannelRef(10),
		NewParentID: domain.TemplateRef(5),
		NewPosition: 0,
		OldParentID: domain.CategoryRef(1),
		OldPosition: 0,
	}, rec.changed[0])
	assert.Equal(t, []string{"channel_10", "channel_11", "category_1", "category_2"}, ids(widget.Nodes()[0].Children))
}

func TestExistingNodeMoveIntoChannelRollsBack(t *testing.T) {
	_, widget, rec := setup(t)

	widget.Drop(Drop{Origin: OriginTree, NodeID: "channel_10", ParentID: "channel_11", Position: 0})

	assert.Empty(t, rec.changed)
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, "channels cannot contain children", rec.rejected[0].Reason)
}

func TestExistingCategoryMoveUnderCategoryRollsBack(t *testing.T) {
	model, widget, rec := setup(t)
	renders := widget.Renders()

	widget.Drop(Drop{Origin: OriginTree, NodeID: "category_2", ParentID: "category_1", Position: 0})

	assert.Empty(t, rec.changed)
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, "categories are always top-level", rec.rejected[0].Reason)
	assert.Greater(t, widget.Renders(), renders)
	assert.Equal(t, []string{"channel_11", "category_1", "category_2"}, ids(widget.Nodes()[0].Children))

	children, err := model.ListChildrenOf(domain.CategoryRef(1))
	require.NoError(t, err)
	for _, c := range children {
		assert.NotEqual(t, domain.CategoryRef(2), c.Ref)
	}
}

func TestSelectionIsNormalized(t *testing.T) {
	_, widget, rec := setup(t)

	widget.Select("channel_10")
	widget.Select("role_3")
	widget.Select("channel_999")

	require.Len(t, rec.selected, 1)
	assert.Equal(t, events.DesignerNodeSelectedEvent{
		ID:          domain.ChannelRef(10),
		Type:        domain.NodeChannel,
		DBID:        10,
		Name:        "chat",
		ChannelType: domain.ChannelText,
	}, rec.selected[0])
}
