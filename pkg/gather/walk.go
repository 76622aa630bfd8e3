package gather

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mailest/mailestd/pkg/catalogue"
	"github.com/mailest/mailestd/pkg/types"
)

// Result is the outcome of walking one folder: the paths that need a
// Draft task, the catalogue paths that are now stale and need a DelDb
// task, and every directory found below the folder (for the monitor
// worker's watch registration); the folder itself is not in Dirs.
type Result struct {
	Puts []string
	Dels []string
	Dirs []string
}

// Walk performs one gather folder walk (spec.md §4.3 steps 1-4): a
// logical (symlink-following) traversal of folder, matching regular
// files whose basename is "<all-digits><suffix>" against the
// catalogue, then a catalogue range scan to find entries under folder
// that the walk did not touch.
func Walk(cat *catalogue.Catalogue, folder string, suffixes []string, now time.Time) (*Result, error) {
	result := &Result{}

	if err := walkDir(folder, func(path string, info os.FileInfo, isDir bool) error {
		if isDir {
			result.Dirs = append(result.Dirs, path)
			return nil
		}
		if !matchesSuffix(info.Name(), suffixes) {
			return nil
		}

		if msg := cat.Get(path); msg != nil {
			msg.FSTime = now
			if msg.OnTask {
				// Mid-flight: leave MTime/Size untouched so the
				// change is still visible on a later walk once
				// the in-flight task clears OnTask.
				return nil
			}
			changed := !msg.MTime.Equal(info.ModTime()) || msg.Size != info.Size()
			if changed {
				msg.MTime = info.ModTime()
				msg.Size = info.Size()
				result.Puts = append(result.Puts, path)
			}
			return nil
		}

		cat.Put(&types.Msg{
			Path:   path,
			MTime:  info.ModTime(),
			Size:   info.Size(),
			FSTime: now,
		})
		result.Puts = append(result.Puts, path)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk %s: %w", folder, err)
	}

	// Append a separator so a folder like ".../inbox" cannot prefix-match
	// a sibling like ".../inbox2" in the catalogue's path-ordered range scan.
	prefix := folder
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	cat.RangePrefix(prefix, func(msg *types.Msg) bool {
		if !msg.FSTime.Equal(now) {
			result.Dels = append(result.Dels, msg.Path)
		}
		return true
	})

	return result, nil
}

// walkDir recursively visits root, following symlinked directories
// (os.Stat resolves them; filepath.WalkDir deliberately does not,
// which is wrong for this domain's logical-walk requirement).
func walkDir(root string, visit func(path string, info os.FileInfo, isDir bool) error) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue // broken symlink or file removed mid-walk
		}

		if info.IsDir() {
			if err := visit(path, info, true); err != nil {
				return err
			}
			if err := walkDir(path, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(path, info, false); err != nil {
			return err
		}
	}
	return nil
}

func matchesSuffix(name string, suffixes []string) bool {
	for _, suf := range suffixes {
		base, ok := cutSuffix(name, suf)
		if !ok || base == "" {
			continue
		}
		if isAllDigits(base) {
			return true
		}
	}
	return false
}

func cutSuffix(name, suffix string) (string, bool) {
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
