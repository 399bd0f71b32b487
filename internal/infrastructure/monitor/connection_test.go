package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type counter struct {
	n   int
	err error
}

func (c counter) Size() (int, error) { return c.n, c.err }

func TestRefreshReportsDependencies(t *testing.T) {
	m := New(Deps{Storage: "postgres", Database: pinger{}, Layouts: counter{n: 3}}, 0, nil)
	m.refresh()

	status := m.GetStatus()
	assert.True(t, status.StorageOK)
	assert.False(t, status.CacheEnabled)
	assert.Equal(t, 3, status.LayoutCount)
	assert.True(t, m.IsOnline())

	m.deps.Database = pinger{err: errors.New("down")}
	m.refresh()
	assert.False(t, m.IsOnline())
}

func TestMemoryStorageIsAlwaysOnline(t *testing.T) {
	m := New(Deps{Storage: "memory", Layouts: counter{err: errors.New("closed")}}, 0, nil)
	m.refresh()

	assert.True(t, m.GetStatus().StorageOK)
	assert.False(t, m.GetStatus().Layouts)
	assert.False(t, m.IsOnline())
	m.Stop()
	m.Stop()
}
