package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closer struct{ closed *[]string }

func (c closer) Close() error {
	*c.closed = append(*c.closed, "layouts")
	return nil
}

func TestShutdownRunsHooksInReverseOnce(t *testing.T) {
	var order []string
	m := New(0, nil)
	m.RegisterCloser("layouts", closer{closed: &order})
	m.Register("templates", func(context.Context) error {
		order = append(order, "templates")
		return errors.New("pool busy")
	})
	m.Register("http", func(context.Context) error {
		order = append(order, "http")
		return nil
	})

	err := m.Shutdown(context.Background())
	assert.EqualError(t, err, "pool busy")
	assert.Equal(t, []string{"http", "templates", "layouts"}, order)

	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestListenStop(t *testing.T) {
	m := New(0, nil)
	stop := m.Listen(func() {})
	stop()
	stop()
	assert.NotNil(t, m.Listen(nil))
}
