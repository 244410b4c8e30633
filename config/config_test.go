package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  host: localhost
  port: 8080
  tls: false
database:
  dsn: postgres://localhost/app
  pool:
    max: 25
limits:
  rate: 2.5
`

func loadSample(t *testing.T) *Tree {
	t.Helper()
	tree, err := Load([]byte(sample))
	require.NoError(t, err)
	return tree
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load([]byte("a: [unclosed"))
	assert.Error(t, err)
}

func TestTree_Lookup(t *testing.T) {
	tree := loadSample(t)

	v, ok := tree.Lookup("server.host")
	require.True(t, ok)
	assert.Equal(t, "localhost", v)

	v, ok = tree.Lookup("database.pool.max")
	require.True(t, ok)
	assert.Equal(t, 25, v)

	_, ok = tree.Lookup("server.missing")
	assert.False(t, ok)
	_, ok = tree.Lookup("no.such.path")
	assert.False(t, ok)
}

func TestTree_TypedGetters(t *testing.T) {
	tree := loadSample(t)

	assert.Equal(t, "localhost", tree.String("server.host", "fallback"))
	assert.Equal(t, "fallback", tree.String("server.absent", "fallback"))

	assert.Equal(t, 8080, tree.Int("server.port", 0))
	assert.Equal(t, 9, tree.Int("server.absent", 9))

	assert.False(t, tree.Bool("server.tls", true))
	assert.True(t, tree.Bool("server.absent", true))

	assert.InDelta(t, 2.5, tree.Float("limits.rate", 0), 1e-9)
}

func TestTree_Sub(t *testing.T) {
	tree := loadSample(t)

	pool := tree.Sub("database.pool")
	assert.Equal(t, 25, pool.Int("max", 0))

	empty := tree.Sub("nope")
	assert.Equal(t, 7, empty.Int("anything", 7))
}

func TestTree_Keys(t *testing.T) {
	tree := loadSample(t)

	keys := tree.Keys("server")
	assert.ElementsMatch(t, []string{"host", "port", "tls"}, keys)
	assert.Nil(t, tree.Keys("server.host"))
}

func TestTree_EnvOverrides(t *testing.T) {
	tree := loadSample(t)

	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_SERVER_TLS", "true")
	t.Setenv("APP_NOT_A_PATH", "ignored")

	over := tree.WithEnvOverrides("APP")

	assert.Equal(t, 9090, over.Int("server.port", 0))
	assert.True(t, over.Bool("server.tls", false))
	_, ok := over.Lookup("not.a.path")
	assert.False(t, ok)

	// The original tree is untouched.
	assert.Equal(t, 8080, tree.Int("server.port", 0))
}
