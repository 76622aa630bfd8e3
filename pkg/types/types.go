// Package types defines the core data structures shared across mailestd:
// the message record, the task sum type, the gather aggregate, and the
// draft document that flows between the main and DB workers.
package types

import "time"

// Msg is the catalogue's record for one message file.
//
// Invariant: while OnTask is true, exactly one task in any worker's
// queue references this Msg (maintained by pkg/dbworker).
type Msg struct {
	Path string // absolute filesystem path, catalogue key

	IndexID uint64 // 0 means "not indexed"
	MTime   time.Time
	Size    int64

	FSTime time.Time // last scan that observed this file

	Draft *Draft // owned while a put is in flight, nil otherwise

	OnTask     bool
	GatherID   uint64 // 0 means "not accounted to any gather"
	KanbanSlot uint64 // valid only while OnTask and a Draft/PutDb is in flight
}

// TaskKind tags the Task payload union. Task is deliberately a flat
// record with every variant's fields present rather than per-variant
// structs: the draft pipeline rewrites Kind in place (Draft -> PutDB)
// while reusing the same *Task, mirroring the source's task-tag
// mutation (Design Note, spec.md §9).
type TaskKind int

const (
	TaskStop TaskKind = iota
	TaskSuspend
	TaskResume
	TaskSyncDB
	TaskInform
	TaskGather
	TaskMonitorFolder
	TaskSearch
	TaskSmew
	TaskDraft
	TaskPutDB
	TaskDelDB
)

func (k TaskKind) String() string {
	switch k {
	case TaskStop:
		return "Stop"
	case TaskSuspend:
		return "Suspend"
	case TaskResume:
		return "Resume"
	case TaskSyncDB:
		return "SyncDb"
	case TaskInform:
		return "Inform"
	case TaskGather:
		return "Gather"
	case TaskMonitorFolder:
		return "MonitorFolder"
	case TaskSearch:
		return "Search"
	case TaskSmew:
		return "Smew"
	case TaskDraft:
		return "Rfc822Draft"
	case TaskPutDB:
		return "Rfc822PutDb"
	case TaskDelDB:
		return "Rfc822DelDb"
	default:
		return "Unknown"
	}
}

// HighPriority reports whether tasks of this kind jump ahead of the
// per-message Draft/PutDB/DelDB traffic (spec.md §4.1).
func (k TaskKind) HighPriority() bool {
	switch k {
	case TaskStop, TaskSuspend, TaskResume, TaskInform, TaskSearch, TaskSyncDB, TaskGather, TaskMonitorFolder, TaskSmew:
		return true
	default:
		return false
	}
}

// OutForm selects the reply encoding for a Search task. Only Lines is
// currently defined (spec.md §6).
type OutForm int

const (
	OutFormLines OutForm = iota
)

// SearchCond is the filter+order payload of a Search task.
type SearchCond struct {
	Max     int
	Attrs   []string // up to 8 attribute expressions, ANDed
	Order   string
	Phrase  string
	OutForm OutForm
}

// Task is the single sum-type record flowing through every worker queue.
// Only the fields relevant to Kind are populated; the rest are zero.
type Task struct {
	ID           uint64
	Kind         TaskKind
	HighPriority bool

	// Rfc822Draft / Rfc822PutDb / Rfc822DelDb
	Msg *Msg

	// Gather / MonitorFolder
	Folder   string
	GatherID uint64

	// Inform
	SrcID   uint64
	Payload []byte

	// Search
	Search SearchCond

	// Smew
	SmewMsgID       string
	SmewFolderScope string

	// SyncDb: cursor carried across the MAILESTD_DBSYNC_NITER re-enqueue
	SyncCursor string
}

// Gather is the tracked aggregate for one "update +folder" request,
// owned exclusively by the DB worker while alive (spec.md §4.3).
type Gather struct {
	ID     uint64
	Target string

	// SrcID is the client session task id the completion or db_error
	// inform is routed back to (pkg/events.Bus).
	SrcID uint64

	Folders     uint64
	Puts        uint64
	Dels        uint64
	FoldersDone uint64
	PutsDone    uint64
	DelsDone    uint64

	ErrMsg string
}

// Done reports whether every counter has reached its target, or an
// error has been recorded — either ends the gather's lifecycle.
func (g *Gather) Done() bool {
	if g.ErrMsg != "" {
		return true
	}
	return g.FoldersDone == g.Folders && g.PutsDone == g.Puts && g.DelsDone == g.Dels
}

// FolderWatch describes one watched folder. pkg/monitor keeps its own
// watch set and does not use this type.
type FolderWatch struct {
	Path          string
	LastEventTime time.Time
}

// Draft is a parsed, trimmed, attribute-annotated message ready to be
// handed to the index (spec.md §4.4, §6 document-parser contract).
type Draft struct {
	id    int64
	attrs map[string]string
	text  string
}

// NewDraft creates an empty draft.
func NewDraft() *Draft {
	return &Draft{attrs: make(map[string]string)}
}

// AddAttr sets an attribute value on the draft, overwriting any prior value.
func (d *Draft) AddAttr(name, value string) {
	d.attrs[name] = value
}

// Attr returns an attribute value, or "" if unset.
func (d *Draft) Attr(name string) string {
	return d.attrs[name]
}

// Attrs returns a copy of every attribute set on the draft.
func (d *Draft) Attrs() map[string]string {
	out := make(map[string]string, len(d.attrs))
	for k, v := range d.attrs {
		out[k] = v
	}
	return out
}

// SetText sets the trimmed body text.
func (d *Draft) SetText(text string) { d.text = text }

// Text returns the trimmed body text.
func (d *Draft) Text() string { return d.text }

// Slim trims the body text to at most size bytes (MAILESTD_TRIMSIZE).
func (d *Draft) Slim(size int) {
	if len(d.text) > size {
		d.text = d.text[:size]
	}
}

// ID returns the id recorded by SetID, 0 if none was. The DB worker
// stores put_doc's id on Msg.IndexID and does not call SetID.
func (d *Draft) ID() int64 { return d.id }

// SetID records an index id on the draft.
func (d *Draft) SetID(id int64) { d.id = id }
