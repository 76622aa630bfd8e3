package gather

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mailest/mailestd/pkg/catalogue"
	"github.com/mailest/mailestd/pkg/types"
)

// ExpandFolders resolves a folder argument into one or more concrete,
// existing directories under maildirRoot (spec.md §4.3 steps 1-3):
//
//   - an empty folder enumerates the union of maildirRoot's top-level
//     directories and every folder the catalogue already knows about,
//     excluding names includeFn rejects (nil includeFn accepts
//     everything).
//   - a relative pattern is brace- and glob-expanded against
//     maildirRoot; every matching existing subdirectory becomes one
//     folder task.
//   - an absolute path is a single folder task if the directory
//     exists; otherwise it is still a single task provided the
//     catalogue has at least one entry under that prefix (so stale
//     entries can be reconciled away even after the directory itself
//     has been removed).
func ExpandFolders(maildirRoot, folder string, cat *catalogue.Catalogue, includeFn func(name string) bool) ([]string, error) {
	if folder == "" {
		return expandRoot(maildirRoot, cat, includeFn)
	}

	if filepath.IsAbs(folder) {
		if info, err := os.Stat(folder); err == nil && info.IsDir() {
			return []string{folder}, nil
		}

		known := false
		cat.RangePrefix(folder, func(*types.Msg) bool {
			known = true
			return false
		})
		if known {
			return []string{folder}, nil
		}
		return nil, fmt.Errorf("folder not found and not in catalogue: %s", folder)
	}

	var folders []string
	for _, pattern := range expandBraces(folder) {
		matches, err := filepath.Glob(filepath.Join(maildirRoot, pattern))
		if err != nil {
			return nil, fmt.Errorf("expand pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				folders = append(folders, m)
			}
		}
	}
	return folders, nil
}

// expandRoot implements the empty-folder case (spec.md §4.3 step 1):
// the union of maildirRoot's direct subdirectories and every top-level
// folder the catalogue already knows about, filtered through includeFn.
func expandRoot(maildirRoot string, cat *catalogue.Catalogue, includeFn func(name string) bool) ([]string, error) {
	union := make(map[string]bool)

	entries, err := os.ReadDir(maildirRoot)
	if err != nil {
		return nil, fmt.Errorf("read maildir root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			union[e.Name()] = true
		}
	}

	cat.All(func(msg *types.Msg) bool {
		if name := topLevelFolder(maildirRoot, msg.Path); name != "" {
			union[name] = true
		}
		return true
	})

	var folders []string
	for name := range union {
		if includeFn != nil && !includeFn(name) {
			continue
		}
		folders = append(folders, filepath.Join(maildirRoot, name))
	}
	sort.Strings(folders)
	return folders, nil
}

// topLevelFolder returns the first path component of path relative to
// maildirRoot, the folder name it was gathered under. A catalogue path
// outside maildirRoot yields "".
func topLevelFolder(maildirRoot, path string) string {
	rel, err := filepath.Rel(maildirRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	if i := strings.IndexByte(rel, os.PathSeparator); i > 0 {
		return rel[:i]
	}
	return ""
}

// expandBraces expands shell-style brace groups ("{a,b,c}") in
// pattern, one group at a time, recursively. filepath.Glob has no
// brace support of its own, so this runs before Glob sees the pattern.
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start == -1 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[start:], '}')
	if end == -1 {
		return []string{pattern}
	}
	end += start

	prefix, suffix := pattern[:start], pattern[end+1:]
	var out []string
	for _, opt := range strings.Split(pattern[start+1:end], ",") {
		out = append(out, expandBraces(prefix+opt+suffix)...)
	}
	return out
}
