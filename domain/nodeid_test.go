package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeRefRoundTrip(t *testing.T) {
	tests := []struct {
		raw string
		ref NodeRef
	}{
		{raw: "template_5", ref: TemplateRef(5)},
		{raw: "category_12", ref: CategoryRef(12)},
		{raw: "channel_7", ref: ChannelRef(7)},
		{raw: "channel_new_3", ref: ChannelRef(-3)},
		{raw: "category_new_1", ref: CategoryRef(-1)},
		{raw: "template_0", ref: TemplateRef(0)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			parsed, err := ParseNodeRef(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.ref, parsed)
			assert.Equal(t, tt.raw, tt.ref.String())
		})
	}
}

func TestParseNodeRefRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "channel", "channel_", "role_4", "channel_x", "channel_0", "channel_-4", "template_new_2", "category_new_"} {
		_, err := ParseNodeRef(raw)
		assert.Error(t, err, raw)
		assert.True(t, IsDomainError(err, ErrCodeInvalid), raw)
	}
}

func TestNodeRefJSON(t *testing.T) {
	node := StructureNode{ID: ChannelRef(-2), ParentID: CategoryRef(4), Position: 1, Name: "x", ChannelType: ChannelVoice}
	raw, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"channel_new_2","parent_id":"category_4","position":1,"name":"x","channel_type":"voice"}`, string(raw))

	var back StructureNode
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, node, back)
}
