package classnames

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "person", Name(0))
	assert.Equal(t, "car", Name(2))
	assert.Equal(t, "toothbrush", Name(79))
	assert.Equal(t, "class 80", Name(80))
	assert.Equal(t, "class -1", Name(-1))
	assert.Equal(t, 80, Count())
}

func TestID(t *testing.T) {
	t.Parallel()

	id, ok := ID("car")
	require.True(t, ok)
	assert.Equal(t, 2, id)

	id, ok = ID("  Traffic Light ")
	require.True(t, ok)
	assert.Equal(t, 9, id)

	_, ok = ID("warthog")
	assert.False(t, ok)
}

func TestParseAllowList(t *testing.T) {
	t.Parallel()

	t.Run("empty allows everything", func(t *testing.T) {
		t.Parallel()
		ids, err := ParseAllowList("")
		require.NoError(t, err)
		assert.Nil(t, ids)
	})

	t.Run("names and ids mix", func(t *testing.T) {
		t.Parallel()
		ids, err := ParseAllowList("person, 2, dog")
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 16}, ids)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		t.Parallel()
		ids, err := ParseAllowList("car,2,car")
		require.NoError(t, err)
		assert.Equal(t, []int{2}, ids)
	})

	t.Run("unknown name rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseAllowList("person,warthog")
		assert.Error(t, err)
	})

	t.Run("negative id rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseAllowList("-3")
		assert.Error(t, err)
	})
}
