// Package smew reconstructs a message thread from the message-id and
// x-mew-parid attribute indexes: the ancestor chain above a message and
// the full descendant tree below it.
package smew

import (
	"fmt"
	"strings"

	"github.com/mailest/mailestd/pkg/index"
)

// DocStore is the read surface a thread walk needs from the index.
type DocStore interface {
	Search(cond index.SearchCond) ([]uint64, error)
	GetDoc(id uint64) (*index.Doc, error)
}

// Thread returns the documents of msgid's thread, oldest ancestor
// first and deepest descendant last, deduplicated by message-id
// (spec.md §4.6). folderScope, if non-empty, is an absolute path: when
// a duplicate message-id is found both inside and outside folderScope,
// the copy inside folderScope is kept.
func Thread(store DocStore, msgid, folderScope string) ([]*index.Doc, error) {
	archive, working, err := walkAncestors(store, msgid)
	if err != nil {
		return nil, err
	}

	archive, err = walkDescendants(store, working, archive)
	if err != nil {
		return nil, err
	}

	return dedupe(archive, folderScope), nil
}

func walkAncestors(store DocStore, msgid string) (archive, working []*index.Doc, err error) {
	cur := msgid
	for i := 0; ; i++ {
		doc, found, err := findByMessageID(store, cur)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			break
		}
		if i == 0 {
			working = append(working, doc)
		} else {
			archive = append([]*index.Doc{doc}, archive...)
		}

		parid := doc.Attr("x-mew-parid")
		if parid == "" {
			break
		}
		cur = parid
	}
	return archive, working, nil
}

func walkDescendants(store DocStore, working, archive []*index.Doc) ([]*index.Doc, error) {
	for len(working) > 0 {
		child := working[0]
		working = working[1:]

		children, err := findByParentID(store, child.Attr("message-id"))
		if err != nil {
			return nil, err
		}
		working = append(working, children...)
		archive = append(archive, child)
	}
	return archive, nil
}

func findByMessageID(store DocStore, msgid string) (*index.Doc, bool, error) {
	docs, err := findByAttr(store, "message-id", msgid)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func findByParentID(store DocStore, msgid string) ([]*index.Doc, error) {
	return findByAttr(store, "x-mew-parid", msgid)
}

func findByAttr(store DocStore, attr, value string) ([]*index.Doc, error) {
	if value == "" {
		return nil, nil
	}
	ids, err := store.Search(index.SearchCond{Attrs: map[string]string{attr: value}})
	if err != nil {
		return nil, fmt.Errorf("search %s=%s: %w", attr, value, err)
	}
	docs := make([]*index.Doc, 0, len(ids))
	for _, id := range ids {
		doc, err := store.GetDoc(id)
		if err != nil {
			return nil, fmt.Errorf("fetch doc %d: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func dedupe(docs []*index.Doc, folderScope string) []*index.Doc {
	seen := map[string]int{}
	kept := make([]*index.Doc, 0, len(docs))

	for _, d := range docs {
		msgid := d.Attr("message-id")
		if i, ok := seen[msgid]; ok {
			if folderScope != "" && inScope(d, folderScope) && !inScope(kept[i], folderScope) {
				kept[i] = d
			}
			continue
		}
		seen[msgid] = len(kept)
		kept = append(kept, d)
	}
	return kept
}

func inScope(d *index.Doc, folderScope string) bool {
	return strings.HasPrefix(d.Attr("@uri"), "file://"+folderScope)
}
