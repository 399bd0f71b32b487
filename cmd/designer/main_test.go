package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/testserver"
)

const guild = "guild-1"

const snapshotJSON = `{"nodes":[
	{"id":"category_new_1","parent_id":"template_0","position":0,"name":"Info"},
	{"id":"channel_new_1","parent_id":"category_new_1","position":0,"name":"rules","channel_type":"text"},
	{"id":"channel_new_2","parent_id":"template_0","position":0,"name":"lounge","channel_type":"voice"}
]}`

func run(t *testing.T, srv *testserver.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{
		v:      viper.New(),
		in:     strings.NewReader(stdin),
		out:    &out,
		errOut: &errOut,
		dial:   srv.Dial,
		logger: zap.NewNop(),
	}
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--server", testserver.URL, "--guild", guild, "--timeout", "5s"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func templateNamed(t *testing.T, srv *testserver.Server, name string) domain.TemplateSummary {
	t.Helper()
	list, err := srv.Templates.List(context.Background(), guild)
	require.NoError(t, err)
	for _, s := range list {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("template %q not found", name)
	return domain.TemplateSummary{}
}

func channelRef(t *testing.T, srv *testserver.Server, templateID int64, name string) string {
	t.Helper()
	tpl, err := srv.Templates.Get(context.Background(), guild, templateID)
	require.NoError(t, err)
	for _, ch := range tpl.Channels {
		if ch.Name == name {
			return domain.ChannelRef(ch.ID).String()
		}
	}
	t.Fatalf("channel %q not found", name)
	return ""
}

func arg(v int64) string { return strconv.FormatInt(v, 10) }

func TestProtectedSnapshotIsForkedOnRequest(t *testing.T) {
	srv := testserver.Start(t, testserver.Options{})

	out, err := run(t, srv, snapshotJSON, "snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "captured template")
	snap := templateNamed(t, srv, "Initial snapshot")

	out, err = run(t, srv, "", "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "Initial snapshot")
	assert.Contains(t, out, "active,snapshot")

	out, err = run(t, srv, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "  Info  [category_")
	assert.Contains(t, out, "    rules  [channel_")

	rules := channelRef(t, srv, snap.ID, "rules")
	_, err = run(t, srv, "", "move", rules, "--position", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protected")
	list, err := srv.Templates.List(context.Background(), guild)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	out, err = run(t, srv, "", "move", rules, "--position", "0", "--fork", "--fork-name", "Launch")
	require.NoError(t, err)
	assert.Contains(t, out, "saved as template")

	fork := templateNamed(t, srv, "Launch")
	tpl, err := srv.Templates.Get(context.Background(), guild, fork.ID)
	require.NoError(t, err)
	for _, ch := range tpl.Channels {
		if ch.Name == "rules" {
			assert.True(t, ch.Uncategorized())
		}
	}
	assert.True(t, templateNamed(t, srv, "Initial snapshot").IsActive)
}

func TestTemplateActions(t *testing.T) {
	srv := testserver.Start(t, testserver.Options{})
	ctx := context.Background()

	_, err := run(t, srv, snapshotJSON, "snapshot")
	require.NoError(t, err)

	out, err := run(t, srv, "", "create", "Blank", "--description", "empty")
	require.NoError(t, err)
	assert.Contains(t, out, "saved as template")
	blank := templateNamed(t, srv, "Blank")
	assert.False(t, blank.IsActive)

	out, err = run(t, srv, "n\n", "activate", arg(blank.ID))
	require.NoError(t, err)
	assert.NotContains(t, out, "activated")

	out, err = run(t, srv, "", "activate", arg(blank.ID), "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "activated template "+arg(blank.ID))
	active, err := srv.Active.GetActive(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, blank.ID, active)

	out, err = run(t, srv, "", "add", "channel", "--name", "general", "--kind", "voice")
	require.NoError(t, err)
	assert.Contains(t, out, "saved template "+arg(blank.ID))
	tpl, err := srv.Templates.Get(ctx, guild, blank.ID)
	require.NoError(t, err)
	require.Len(t, tpl.Channels, 1)
	assert.Equal(t, "general", tpl.Channels[0].Name)
	assert.Equal(t, domain.ChannelVoice, tpl.Channels[0].Kind)

	general := channelRef(t, srv, blank.ID, "general")
	_, err = run(t, srv, "", "edit", general, "--name", "chat", "--kind", "text")
	require.NoError(t, err)
	tpl, err = srv.Templates.Get(ctx, guild, blank.ID)
	require.NoError(t, err)
	assert.Equal(t, "chat", tpl.Channels[0].Name)
	assert.Equal(t, domain.ChannelText, tpl.Channels[0].Kind)

	_, err = run(t, srv, "", "rename", arg(blank.ID), "Events", "--description", "for launches")
	require.NoError(t, err)
	renamed := templateNamed(t, srv, "Events")
	assert.Equal(t, blank.ID, renamed.ID)

	code, err := run(t, srv, "", "share", arg(blank.ID), "--yes")
	require.NoError(t, err)
	code = strings.TrimSpace(code)
	assert.NotEmpty(t, code)

	out, err = run(t, srv, "", "shared")
	require.NoError(t, err)
	assert.Contains(t, out, code)
	assert.Contains(t, out, "Events")

	shared, err := srv.Templates.ListShared(ctx)
	require.NoError(t, err)
	require.Len(t, shared, 1)

	out, err = run(t, srv, "", "copy", arg(shared[0].ID), "--name", "Events copy")
	require.NoError(t, err)
	assert.Contains(t, out, "copied as template")
	copied := templateNamed(t, srv, "Events copy")

	out, err = run(t, srv, "", "delete", arg(copied.ID), "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted template")
	list, err := srv.Templates.List(ctx, guild)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = run(t, srv, "", "delete", arg(shared[0].ID), "--shared", "--yes")
	require.NoError(t, err)
	shared, err = srv.Templates.ListShared(ctx)
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestSnapshotCannotBeDeleted(t *testing.T) {
	srv := testserver.Start(t, testserver.Options{})
	_, err := run(t, srv, snapshotJSON, "snapshot")
	require.NoError(t, err)
	snap := templateNamed(t, srv, "Initial snapshot")

	_, err = run(t, srv, "", "delete", arg(snap.ID), "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be deleted")

	_, err = run(t, srv, "", "activate", "abc")
	assert.Error(t, err)
}

func TestLayoutRoundTrip(t *testing.T) {
	srv := testserver.Start(t, testserver.Options{})

	out, err := run(t, srv, "", "layout", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "no saved layout")

	_, err = run(t, srv, "", "layout", "set", `{"panels":[{"id":"tree","width":320}]}`)
	require.NoError(t, err)

	out, err = run(t, srv, "", "layout", "show")
	require.NoError(t, err)
	assert.JSONEq(t, `{"panels":[{"id":"tree","width":320}]}`, strings.TrimSpace(out))

	_, err = run(t, srv, "", "layout", "set", `{"panels":`)
	assert.Error(t, err)
}

func TestMissingGuild(t *testing.T) {
	srv := testserver.Start(t, testserver.Options{})
	var out bytes.Buffer
	a := &app{v: viper.New(), in: strings.NewReader(""), out: &out, errOut: &out, dial: srv.Dial, logger: zap.NewNop()}
	root := newRootCmd(a)
	root.SetArgs([]string{"--server", testserver.URL, "templates"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guild id is required")
}
