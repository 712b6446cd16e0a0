package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestPutRetrieve_RoundTrip(t *testing.T) {
	st := setupStore(t)

	err := st.Put("session:demo:abc", map[string]string{"task": "demo"})
	require.NoError(t, err)

	raw, found, err := st.Retrieve("session:demo:abc")
	require.NoError(t, err)
	require.True(t, found)

	var v map[string]string
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, "demo", v["task"])
}

func TestRetrieve_IncrementsAccessCount(t *testing.T) {
	st := setupStore(t)

	require.NoError(t, st.Put("k", "v"))

	_, _, err := st.Retrieve("k")
	require.NoError(t, err)
	_, _, err = st.Retrieve("k")
	require.NoError(t, err)

	entries, err := st.List("k")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].AccessCount)
}

func TestRetrieve_Missing(t *testing.T) {
	st := setupStore(t)

	_, found, err := st.Retrieve("nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPut_PreservesAccessCount(t *testing.T) {
	st := setupStore(t)

	require.NoError(t, st.Put("k", "v1"))
	_, _, err := st.Retrieve("k")
	require.NoError(t, err)

	require.NoError(t, st.Put("k", "v2"))

	entries, err := st.List("k")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].AccessCount)

	var v string
	found, err := st.Peek("k", &v)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", v)
}

func TestList_PrefixFiltering(t *testing.T) {
	st := setupStore(t)

	require.NoError(t, st.Put(models.NamespaceSession+"p:1", "a"))
	require.NoError(t, st.Put(models.NamespaceSession+"p:2", "b"))
	require.NoError(t, st.Put(models.NamespacePattern+"x", "c"))

	sessions, err := st.List(models.NamespaceSession)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, models.NamespaceSession+"p:1", sessions[0].Key)

	all, err := st.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestList_EmptyStore(t *testing.T) {
	st := setupStore(t)

	entries, err := st.List("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDelete(t *testing.T) {
	st := setupStore(t)

	require.NoError(t, st.Put("k", "v"))
	require.NoError(t, st.Delete("k"))

	_, found, err := st.Retrieve("k")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is a no-op.
	require.NoError(t, st.Delete("k"))
}

func TestPeek_DoesNotBumpAccessCount(t *testing.T) {
	st := setupStore(t)

	require.NoError(t, st.Put("k", "v"))

	var v string
	found, err := st.Peek("k", &v)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", v)

	entries, err := st.List("k")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].AccessCount)
}

func TestPut_EmptyKey(t *testing.T) {
	st := setupStore(t)
	assert.Error(t, st.Put("", "v"))
}
