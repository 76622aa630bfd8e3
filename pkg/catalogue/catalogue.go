// Package catalogue holds the in-memory, path-ordered map of every
// message mailestd knows about. It replaces the macro-generated
// red-black tree of the original design with a B-tree ordered by path
// string, which gives the same lower-bound/range-scan operation gather
// needs to enumerate "every message under folder X" (spec.md design
// note, §9).
package catalogue

import (
	"strings"

	"github.com/google/btree"

	"github.com/mailest/mailestd/pkg/types"
)

// entry is the B-tree element; only Path participates in ordering.
type entry struct {
	msg *types.Msg
}

func less(a, b entry) bool {
	return a.msg.Path < b.msg.Path
}

// Catalogue is the path-ordered map path -> *types.Msg. It is not
// internally synchronized: per spec.md §5, access is serialized by
// routing all mutation through tasks so that at most one worker ever
// touches a given record at a time; the catalogue itself assumes a
// single caller at a time (main or DB worker).
type Catalogue struct {
	tree *btree.BTreeG[entry]
}

// New creates an empty catalogue.
func New() *Catalogue {
	return &Catalogue{
		tree: btree.NewG(32, less),
	}
}

// Get returns the message at path, or nil if absent.
func (c *Catalogue) Get(path string) *types.Msg {
	e, ok := c.tree.Get(entry{msg: &types.Msg{Path: path}})
	if !ok {
		return nil
	}
	return e.msg
}

// Put inserts or replaces the message record for msg.Path.
func (c *Catalogue) Put(msg *types.Msg) {
	c.tree.ReplaceOrInsert(entry{msg: msg})
}

// Delete removes the record at path, returning it if present.
func (c *Catalogue) Delete(path string) *types.Msg {
	e, ok := c.tree.Delete(entry{msg: &types.Msg{Path: path}})
	if !ok {
		return nil
	}
	return e.msg
}

// Len returns the number of messages tracked.
func (c *Catalogue) Len() int {
	return c.tree.Len()
}

// RangePrefix calls fn for every message whose path has the given
// prefix, in path order. Stops early if fn returns false. This is the
// primitive gather uses to diff a folder's on-disk state against what
// the catalogue already knows (spec.md §4.3 step 4).
func (c *Catalogue) RangePrefix(prefix string, fn func(*types.Msg) bool) {
	// Paths under prefix sort within [prefix, prefixUpperBound); the
	// upper bound is the least string greater than every path with
	// this prefix, obtained by incrementing the final byte.
	lo := entry{msg: &types.Msg{Path: prefix}}
	hi := upperBound(prefix)

	c.tree.AscendRange(lo, entry{msg: &types.Msg{Path: hi}}, func(e entry) bool {
		if !strings.HasPrefix(e.msg.Path, prefix) {
			return true
		}
		return fn(e.msg)
	})
}

// upperBound returns the lexicographically smallest string that is
// strictly greater than every string with the given prefix.
func upperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// prefix is all 0xff bytes, so no string bounds it from above; use
	// prefix plus four 0xff bytes, which misses any key that continues
	// the prefix with four or more 0xff bytes.
	return prefix + "\xff\xff\xff\xff"
}

// All calls fn for every message in path order. Stops early if fn
// returns false.
func (c *Catalogue) All(fn func(*types.Msg) bool) {
	c.tree.Ascend(func(e entry) bool {
		return fn(e.msg)
	})
}
