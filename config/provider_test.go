package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomdi/loom/internal/di"
)

func TestDeferred_BindsTreeAndLeaves(t *testing.T) {
	tree, err := Load([]byte("server:\n  port: 8080\n  host: localhost\n"))
	require.NoError(t, err)

	b := di.NewBuilder()
	b.AddDeferred(Deferred("cfg", tree))
	c, err := b.Build()
	require.NoError(t, err)

	v, err := c.Get(di.Named("cfg"))
	require.NoError(t, err)
	assert.Same(t, tree, v)

	port, err := c.Get(di.Named("cfg.server.port"))
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	host, err := c.Get(di.Named("cfg.server.host"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)

	_, err = c.Get(di.Named("cfg.server.absent"))
	assert.Error(t, err)
}
