package gather

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/catalogue"
	"github.com/mailest/mailestd/pkg/types"
)

func TestExpandBraces(t *testing.T) {
	assert.Equal(t, []string{"inbox"}, expandBraces("inbox"))
	assert.ElementsMatch(t, []string{"inbox/work", "inbox/personal"}, expandBraces("inbox/{work,personal}"))
	assert.ElementsMatch(t, []string{"a/x/1", "a/y/1", "a/x/2", "a/y/2"}, expandBraces("a/{x,y}/{1,2}"))
}

func TestExpandFoldersRelativePattern(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "archive"), 0755))

	folders, err := ExpandFolders(root, "{inbox,archive}", catalogue.New(), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "inbox"),
		filepath.Join(root, "archive"),
	}, folders)
}

func TestExpandFoldersAbsoluteExisting(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "inbox")
	require.NoError(t, os.MkdirAll(folder, 0755))

	folders, err := ExpandFolders(root, folder, catalogue.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{folder}, folders)
}

func TestExpandFoldersAbsoluteMissingButCatalogued(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "deleted-folder")

	cat := catalogue.New()
	cat.Put(&types.Msg{Path: filepath.Join(folder, "1.mew")})

	folders, err := ExpandFolders(root, folder, cat, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{folder}, folders)
}

func TestExpandFoldersAbsoluteMissingAndUnknown(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "never-existed")

	_, err := ExpandFolders(root, folder, catalogue.New(), nil)
	assert.Error(t, err)
}

func TestExpandFoldersEmptyUnionsRootAndCatalogue(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "spam"), 0755))

	cat := catalogue.New()
	// "archive" no longer exists on disk but is still known to the
	// catalogue, and must still appear in the union.
	cat.Put(&types.Msg{Path: filepath.Join(root, "archive", "1.mew")})

	folders, err := ExpandFolders(root, "", cat, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "inbox"),
		filepath.Join(root, "spam"),
		filepath.Join(root, "archive"),
	}, folders)
}

func TestExpandFoldersEmptyExcludesPattern(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "trash"), 0755))

	includeFn := func(name string) bool { return name != "trash" }

	folders, err := ExpandFolders(root, "", catalogue.New(), includeFn)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "inbox")}, folders)
}
