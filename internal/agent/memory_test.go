// internal/agent/memory_test.go
package agent

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func entryAt(i int, job Job) MemoryEntry {
	return NewMemoryEntry(job, "https://example.com/page", epoch.Add(time.Duration(i)*time.Second))
}

func TestNewMemoryEntry(t *testing.T) {
	e := NewMemoryEntry(Navigate("https://example.com"), "https://example.com/", epoch.In(time.FixedZone("CET", 3600)))
	assert.Equal(t, KindNavigate, e.Action)
	assert.Equal(t, "https://example.com", e.Selector)
	assert.Equal(t, time.UTC, e.Timestamp.Location())

	e = NewMemoryEntry(Screenshot("home"), "", epoch)
	assert.Equal(t, "home", e.Selector)
}

func TestMemory_AddEvictsOldestFirst(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		m.Add(entryAt(i, Click("#b"+string(rune('0'+i)))))
		assert.LessOrEqual(t, m.Len(), 3)
	}

	all := m.All()
	require.Len(t, all, 3)
	assert.Equal(t, "#b2", all[0].Selector)
	assert.Equal(t, "#b4", all[2].Selector)
}

func TestMemory_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMemoryCapacity, NewMemory(0).Capacity())
	assert.Equal(t, 50, DefaultMemoryCapacity)
}

func TestMemory_AllIsACopy(t *testing.T) {
	m := NewMemory(5)
	m.Add(entryAt(0, Click("#a")))
	all := m.All()
	all[0].Selector = "mutated"
	assert.Equal(t, "#a", m.All()[0].Selector)
}

func TestMemory_Queries(t *testing.T) {
	m := NewMemory(10)
	_, ok := m.Last()
	assert.False(t, ok)
	assert.Empty(t, m.LastN(3))

	m.Add(entryAt(0, Click("#a")))
	m.Add(entryAt(1, Type("#q", "x")))
	m.Add(entryAt(2, Click("#a")))

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, Click("#a"), last.Job)

	recent := m.LastN(2)
	require.Len(t, recent, 2)
	assert.Equal(t, epoch.Add(2*time.Second), recent[0].Timestamp)
	assert.Equal(t, epoch.Add(1*time.Second), recent[1].Timestamp)
	assert.Len(t, m.LastN(10), 3)
	assert.Empty(t, m.LastN(-1))

	assert.Len(t, m.BySelector("#a"), 2)
	assert.Empty(t, m.BySelector("#none"))

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestMemory_JSONRoundTrip(t *testing.T) {
	m := NewMemory(10)
	m.Add(entryAt(0, Navigate("https://example.com")))
	m.Add(entryAt(1, Type("#q", "golang")))
	m.Add(NewMemoryEntry(Screenshot("results"), "", epoch.Add(1500*time.Millisecond)))

	data, err := m.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {")

	back, err := MemoryFromJSON(data, 10)
	require.NoError(t, err)
	if diff := cmp.Diff(m.All(), back.All()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryFromJSON_KeepsOversizedImportUntilNextAdd(t *testing.T) {
	src := NewMemory(10)
	for i := 0; i < 6; i++ {
		src.Add(entryAt(i, Click("#x")))
	}
	data, err := src.ToJSON()
	require.NoError(t, err)

	m, err := MemoryFromJSON(data, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Len())

	m.Add(entryAt(6, Click("#y")))
	assert.Equal(t, 4, m.Len())
	last, _ := m.Last()
	assert.Equal(t, "#y", last.Selector)
}

func TestMemoryFromJSON_Errors(t *testing.T) {
	for _, in := range []string{`{`, `{"not": "a list"}`, `[{"action":"Click","job":{"kind":"Click"}}]`} {
		_, err := MemoryFromJSON([]byte(in), 5)
		require.Error(t, err, in)
		assert.Equal(t, schemas.ErrCodeMemory, schemas.CodeOf(err), in)
	}
}

func TestMemory_PersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")

	m := NewMemory(5)
	m.Add(entryAt(0, Navigate("https://example.com")))
	m.Add(entryAt(1, Click("#go")))
	require.NoError(t, m.Persist(path))

	loaded, err := LoadMemory(path, 5)
	require.NoError(t, err)
	assert.Equal(t, m.All(), loaded.All())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLoadMemory_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMemory(filepath.Join(dir, "missing.json"), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	_, err = LoadMemory(bad, 5)
	var memErr *schemas.MemoryError
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, bad, memErr.Path)
}
