package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("empty id with a single instance", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Add(&Instance{ID: "kitchen"}))

		inst, err := reg.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "kitchen", inst.ID)
	})

	t.Run("empty id with multiple instances is ambiguous", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Add(&Instance{ID: "kitchen"}))
		require.NoError(t, reg.Add(&Instance{ID: "office"}))

		_, err := reg.Resolve("")
		assert.ErrorIs(t, err, ErrAmbiguousDevice)
	})

	t.Run("empty id with no instances", func(t *testing.T) {
		reg := New()

		_, err := reg.Resolve("")
		assert.ErrorIs(t, err, ErrUnknownDevice)
	})

	t.Run("explicit id", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Add(&Instance{ID: "kitchen"}))
		require.NoError(t, reg.Add(&Instance{ID: "office"}))

		inst, err := reg.Resolve("office")
		require.NoError(t, err)
		assert.Equal(t, "office", inst.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Add(&Instance{ID: "kitchen"}))

		_, err := reg.Resolve("garage")
		assert.ErrorIs(t, err, ErrUnknownDevice)
	})
}

func TestAdd(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Add(&Instance{ID: "kitchen"}))
	assert.Error(t, reg.Add(&Instance{ID: "kitchen"}))
}

func TestAll(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Add(&Instance{ID: "office"}))
	require.NoError(t, reg.Add(&Instance{ID: "kitchen"}))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "kitchen", all[0].ID)
	assert.Equal(t, "office", all[1].ID)
}
