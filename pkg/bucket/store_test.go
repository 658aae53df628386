package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set("k1", []byte("v1")))
	val, found, err := s.Get("k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, s.Delete("k1"))
	_, found, err = s.Get("k1")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete("k1"))
}

func TestList(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set("b", []byte("2")))
	require.NoError(t, s.Set("a", []byte("1")))
	require.NoError(t, s.Set("c", []byte("3")))

	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestCompactDropsEmptyValuesAndRecordsOutcome(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set("live", []byte("data")))
	require.NoError(t, s.Set("dead", []byte("")))

	_, found, err := s.LastCompaction()
	require.NoError(t, err)
	assert.False(t, found)

	rec, err := s.Compact()
	require.NoError(t, err)
	assert.Equal(t, 1, rec.PropertyKeys)
	assert.Equal(t, 4, rec.BytesBefore)
	assert.Equal(t, 4, rec.BytesAfter)

	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, keys)

	last, found, err := s.LastCompaction()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.PropertyKeys, last.PropertyKeys)
}
