// ABOUTME: Tests for the subscriber registry.
// ABOUTME: Validates upsert registration, unregistration, listing, and clearing.

package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	existed := reg.Register("client-1", "http://localhost:9001/callback")
	assert.False(t, existed)
	assert.Equal(t, 1, reg.Len())

	sub, ok := reg.Get("client-1")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9001/callback", sub.CallbackURL)
	assert.False(t, sub.RegisteredAt.IsZero())
}

func TestRegistry_Register_Upsert(t *testing.T) {
	reg := NewRegistry()

	reg.Register("client-1", "http://old:1/cb")
	existed := reg.Register("client-1", "http://new:2/cb")

	assert.True(t, existed, "re-registration should report the overwrite")
	assert.Equal(t, 1, reg.Len())

	sub, _ := reg.Get("client-1")
	assert.Equal(t, "http://new:2/cb", sub.CallbackURL)
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()

	reg.Register("client-1", "http://localhost:9001/cb")

	assert.True(t, reg.Unregister("client-1"))
	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.Unregister("client-1"), "second unregister reports not found")
}

func TestRegistry_List_OrderedByID(t *testing.T) {
	reg := NewRegistry()

	reg.Register("charlie", "http://c/cb")
	reg.Register("alpha", "http://a/cb")
	reg.Register("bravo", "http://b/cb")

	subs := reg.List()
	require.Len(t, subs, 3)
	assert.Equal(t, "alpha", subs[0].ID)
	assert.Equal(t, "bravo", subs[1].ID)
	assert.Equal(t, "charlie", subs[2].ID)
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry()

	reg.Register("a", "http://a/cb")
	reg.Register("b", "http://b/cb")

	assert.Equal(t, 2, reg.Clear())
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, reg.Clear())
}
