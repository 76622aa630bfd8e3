package mainworker

import (
	"os"
	"strconv"

	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/parser"
	"github.com/mailest/mailestd/pkg/smew"
	"github.com/mailest/mailestd/pkg/types"
)

// uriFilePrefix matches pkg/dbworker's constant of the same name: the
// scheme SyncDb strips back off a stored @uri to recover the catalogue
// path.
const uriFilePrefix = "file://"

// parseFile reads msg's file, parses it via pkg/parser, and attaches
// the catalogue-derived attributes the parser itself never sees:
// @uri (the file:// URI of msg.Path), @mdate (msg.MTime, the
// filesystem timestamp, not anything out of the message body), @size,
// and x-mew-parid (spec.md §4.4, §4.6).
func (w *Worker) parseFile(msg *types.Msg) (*types.Draft, error) {
	f, err := os.Open(msg.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	draft, err := parser.Parse(f, w.trimSize)
	if err != nil {
		return nil, err
	}

	draft.AddAttr("@uri", uriFilePrefix+msg.Path)
	draft.AddAttr("@mdate", index.FormatMDate(msg.MTime))
	draft.AddAttr("@size", strconv.FormatInt(msg.Size, 10))
	if parid := smew.ExtractParentID(draft.Attr("in-reply-to"), draft.Attr("references")); parid != "" {
		draft.AddAttr("x-mew-parid", parid)
	}
	return draft, nil
}
