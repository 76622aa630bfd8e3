// Package index implements mailestd's external storage-engine contract
// (spec.md §6) on top of go.etcd.io/bbolt: open/close, put_doc/out_doc/
// get_doc, iter_init/iter_next, search, flush/optimize, used_cache_size,
// add_attr_index, uri_to_id, and attr_index_exprs.
//
// Bucket layout:
//
//   - "docs": uint64 big-endian id -> JSON-encoded Doc.
//   - "uri": uri string -> id (big-endian uint64), for uri_to_id.
//   - "attr:<name>": one bucket per indexed attribute, keyed
//     "<value>\x00<id big-endian>" -> empty, for equality lookups
//     (message-id and x-mew-parid are ensured at startup per §6).
//   - "postings": one nested bucket per lower-cased text token, keyed
//     by id big-endian -> empty, for phrase search.
//   - "meta": singleton counters (next document id). The put/delete
//     count since the last optimize is tracked in memory only, reset
//     on process restart along with the optimize-due decision.
package index
