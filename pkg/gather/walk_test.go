package gather

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/catalogue"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWalkFindsNewMessages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1.mew"), "one")
	writeFile(t, filepath.Join(root, "2.mew"), "two")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")

	cat := catalogue.New()
	now := time.Now()
	result, err := Walk(cat, root, []string{".mew"}, now)
	require.NoError(t, err)

	assert.Len(t, result.Puts, 2)
	assert.Empty(t, result.Dels)
	assert.Equal(t, 2, cat.Len())
}

func TestWalkDetectsStaleEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1.mew"), "one")

	cat := catalogue.New()
	now := time.Now()
	_, err := Walk(cat, root, []string{".mew"}, now)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "1.mew")))

	later := now.Add(time.Second)
	result, err := Walk(cat, root, []string{".mew"}, later)
	require.NoError(t, err)
	assert.Empty(t, result.Puts)
	require.Len(t, result.Dels, 1)
	assert.Equal(t, filepath.Join(root, "1.mew"), result.Dels[0])
}

func TestWalkDetectsChangedSize(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "1.mew")
	writeFile(t, path, "one")

	cat := catalogue.New()
	now := time.Now()
	_, err := Walk(cat, root, []string{".mew"}, now)
	require.NoError(t, err)

	writeFile(t, path, "one-longer-body")
	later := now.Add(time.Second)
	result, err := Walk(cat, root, []string{".mew"}, later)
	require.NoError(t, err)
	assert.Len(t, result.Puts, 1)
	assert.Empty(t, result.Dels)
}

func TestWalkIgnoresNonNumericBasenames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "draft.mew"), "not numeric")
	writeFile(t, filepath.Join(root, "7.mew"), "numeric")

	cat := catalogue.New()
	result, err := Walk(cat, root, []string{".mew"}, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Puts, 1)
	assert.Equal(t, filepath.Join(root, "7.mew"), result.Puts[0])
}

func TestWalkDoesNotMatchSiblingFolderSharingPrefix(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox2"), 0755))
	writeFile(t, filepath.Join(root, "inbox", "1.mew"), "one")
	writeFile(t, filepath.Join(root, "inbox2", "9.mew"), "nine")

	cat := catalogue.New()
	now := time.Now()
	_, err := Walk(cat, filepath.Join(root, "inbox"), []string{".mew"}, now)
	require.NoError(t, err)
	_, err = Walk(cat, filepath.Join(root, "inbox2"), []string{".mew"}, now)
	require.NoError(t, err)

	later := now.Add(time.Second)
	result, err := Walk(cat, filepath.Join(root, "inbox"), []string{".mew"}, later)
	require.NoError(t, err)
	assert.Empty(t, result.Dels, "walking inbox must not see inbox2's stale entry")
}

func TestWalkRecordsVisitedDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	writeFile(t, filepath.Join(root, "sub", "1.mew"), "one")

	cat := catalogue.New()
	result, err := Walk(cat, root, []string{".mew"}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, result.Dirs, filepath.Join(root, "sub"))
}
