package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateFromStructure(t *testing.T) {
	renamed := "lobby"
	payload := StructurePayload{
		Nodes: []StructureNode{
			{ID: CategoryRef(1), ParentID: TemplateRef(5), Position: 1, Name: "General"},
			{ID: CategoryRef(-1), ParentID: TemplateRef(5), Position: 0, Name: "new-category"},
			{ID: ChannelRef(10), ParentID: TemplateRef(5), Position: 0, Name: "chat", ChannelType: ChannelText},
			{ID: ChannelRef(-2), ParentID: CategoryRef(-1), Position: 0, Name: "new-channel"},
		},
		PropertyChanges: map[string]PropertyChange{"channel_new_2": {Name: &renamed}},
	}

	tpl, err := TemplateFromStructure(5, payload)
	require.NoError(t, err)
	require.Len(t, tpl.Categories, 2)
	assert.Equal(t, int64(-1), tpl.Categories[0].ID)
	assert.Equal(t, 0, tpl.Categories[0].Position)
	require.Len(t, tpl.Channels, 2)

	var created Channel
	for _, ch := range tpl.Channels {
		if ch.ID == -2 {
			created = ch
		}
	}
	assert.Equal(t, "lobby", created.Name)
	assert.Equal(t, ChannelText, created.Kind)
	require.NotNil(t, created.ParentCategoryID)
	assert.Equal(t, int64(-1), *created.ParentCategoryID)
}

func TestTemplateFromStructureValidation(t *testing.T) {
	tests := []struct {
		name  string
		nodes []StructureNode
	}{
		{name: "nested category", nodes: []StructureNode{
			{ID: CategoryRef(1), ParentID: TemplateRef(5), Name: "a"},
			{ID: CategoryRef(2), ParentID: CategoryRef(1), Name: "b"},
		}},
		{name: "channel under channel", nodes: []StructureNode{
			{ID: ChannelRef(1), ParentID: TemplateRef(5), Name: "a"},
			{ID: ChannelRef(2), ParentID: ChannelRef(1), Name: "b"},
		}},
		{name: "unknown parent", nodes: []StructureNode{
			{ID: ChannelRef(1), ParentID: CategoryRef(9), Name: "a"},
		}},
		{name: "foreign root", nodes: []StructureNode{
			{ID: ChannelRef(1), ParentID: TemplateRef(6), Name: "a"},
		}},
		{name: "empty name", nodes: []StructureNode{
			{ID: CategoryRef(1), ParentID: TemplateRef(5)},
		}},
		{name: "duplicate", nodes: []StructureNode{
			{ID: ChannelRef(1), ParentID: TemplateRef(5), Name: "a"},
			{ID: ChannelRef(1), ParentID: TemplateRef(5), Name: "b"},
		}},
		{name: "bad channel type", nodes: []StructureNode{
			{ID: ChannelRef(1), ParentID: TemplateRef(5), Name: "a", ChannelType: "hologram"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TemplateFromStructure(5, StructurePayload{Nodes: tt.nodes})
			assert.True(t, IsDomainError(err, ErrCodeInvalid), "got %v", err)
		})
	}
}

func TestTemplateFromStructureInfersRoot(t *testing.T) {
	_, err := TemplateFromStructure(0, StructurePayload{Nodes: []StructureNode{
		{ID: ChannelRef(1), ParentID: TemplateRef(3), Name: "a"},
		{ID: ChannelRef(2), ParentID: TemplateRef(4), Name: "b"},
	}})
	assert.Error(t, err)

	tpl, err := TemplateFromStructure(0, StructurePayload{Nodes: []StructureNode{
		{ID: ChannelRef(1), ParentID: TemplateRef(3), Name: "a"},
	}})
	require.NoError(t, err)
	assert.Zero(t, tpl.ID)
	assert.Len(t, tpl.Channels, 1)
}

func TestStructureOfRoundTrip(t *testing.T) {
	parent := int64(1)
	tpl := &Template{
		ID:         3,
		Categories: []Category{{ID: 1, Name: "c", Position: 3}},
		Channels:   []Channel{{ID: 2, Name: "x", Kind: ChannelVoice, ParentCategoryID: &parent, Position: 8}},
	}
	rebuilt, err := TemplateFromStructure(3, StructureOf(tpl))
	require.NoError(t, err)
	assert.Equal(t, 0, rebuilt.Categories[0].Position)
	assert.Equal(t, 0, rebuilt.Channels[0].Position)
	assert.Equal(t, ChannelVoice, rebuilt.Channels[0].Kind)
}
