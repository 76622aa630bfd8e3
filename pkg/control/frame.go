package control

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mailest/mailestd/pkg/types"
)

// Fixed field widths. msgIDMax matches spec.md §6's "msgid[<=256]";
// pathMax is PATH_MAX. attrMax/orderMax/phraseMax have no value
// mandated by the spec beyond "a string" — sized generously for a
// control-plane command, not a hot path.
const (
	pathMax   = 4096
	msgIDMax  = 256
	attrMax   = 512
	orderMax  = 64
	phraseMax = 1024
	maxAttrs  = 8
)

// Command tags a Frame's variant, from the set spec.md §6 lists.
type Command uint8

const (
	CmdNone Command = iota
	CmdDebugUp
	CmdDebugDown
	CmdStop
	CmdUpdate
	CmdSuspend
	CmdResume
	CmdSearch
	CmdSmew
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "None"
	case CmdDebugUp:
		return "DebugUp"
	case CmdDebugDown:
		return "DebugDown"
	case CmdStop:
		return "Stop"
	case CmdUpdate:
		return "Update"
	case CmdSuspend:
		return "Suspend"
	case CmdResume:
		return "Resume"
	case CmdSearch:
		return "Search"
	case CmdSmew:
		return "Smew"
	default:
		return "Unknown"
	}
}

// Frame is the fixed-size command record exchanged over the control
// socket: the direct, honest translation of the source's C union into
// a single Go record, every variant's fields always present (Design
// Note, spec.md §9). Encoded with encoding/binary so the wire layout
// never depends on struct padding.
type Frame struct {
	Command Command
	_       [7]byte // pad Command to an 8-byte boundary; binary.Write ignores names but keeps layout legible

	// Update / Smew: the folder the command scopes to.
	Folder [pathMax]byte

	// Search
	OutForm uint8
	_       [3]byte
	Max     int32
	Attrs   [maxAttrs][attrMax]byte
	Order   [orderMax]byte
	Phrase  [phraseMax]byte

	// Smew
	MsgID [msgIDMax]byte
}

// FrameSize is the exact wire size of one Frame: the byte count a
// SEQPACKET datagram must carry whole.
var FrameSize = binary.Size(Frame{})

// Encode writes f to w in its fixed binary layout.
func (f *Frame) Encode(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, f)
}

// Decode reads one Frame from r.
func Decode(r io.Reader) (*Frame, error) {
	var f Frame
	if err := binary.Read(r, binary.BigEndian, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// putString copies s into dst, NUL-terminated, failing rather than
// silently truncating an over-long argument (spec.md §7's Protocol
// error kind: "malformed client command, over-long argument").
func putString(dst []byte, s, field string) error {
	if len(s) >= len(dst) {
		return fmt.Errorf("%s too long: %d bytes, max %d", field, len(s), len(dst)-1)
	}
	clear(dst)
	copy(dst, s)
	return nil
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// FolderStr returns the Folder field as a Go string (Update/Smew).
func (f *Frame) FolderStr() string { return getString(f.Folder[:]) }

// SmewMsgIDStr returns the MsgID field as a Go string.
func (f *Frame) SmewMsgIDStr() string { return getString(f.MsgID[:]) }

// SearchCond decodes the Search fields into the task payload's shape.
func (f *Frame) SearchCond() types.SearchCond {
	cond := types.SearchCond{
		Max:     int(f.Max),
		Order:   getString(f.Order[:]),
		Phrase:  getString(f.Phrase[:]),
		OutForm: types.OutForm(f.OutForm),
	}
	for _, a := range f.Attrs {
		if s := getString(a[:]); s != "" {
			cond.Attrs = append(cond.Attrs, s)
		}
	}
	return cond
}

// NewSimpleFrame builds a frame for a command with no trailing fields
// (None, DebugUp, DebugDown, Stop, Suspend, Resume).
func NewSimpleFrame(cmd Command) *Frame {
	return &Frame{Command: cmd}
}

// NewUpdateFrame builds an Update command frame scoped to folder (the
// empty string means "every included root folder").
func NewUpdateFrame(folder string) (*Frame, error) {
	f := &Frame{Command: CmdUpdate}
	if err := putString(f.Folder[:], folder, "folder"); err != nil {
		return nil, err
	}
	return f, nil
}

// NewSearchFrame builds a Search command frame from cond.
func NewSearchFrame(cond types.SearchCond) (*Frame, error) {
	if len(cond.Attrs) > maxAttrs {
		return nil, fmt.Errorf("search: at most %d attrs, got %d", maxAttrs, len(cond.Attrs))
	}
	f := &Frame{Command: CmdSearch, OutForm: uint8(cond.OutForm), Max: int32(cond.Max)}
	for i, a := range cond.Attrs {
		if err := putString(f.Attrs[i][:], a, "attr"); err != nil {
			return nil, err
		}
	}
	if err := putString(f.Order[:], cond.Order, "order"); err != nil {
		return nil, err
	}
	if err := putString(f.Phrase[:], cond.Phrase, "phrase"); err != nil {
		return nil, err
	}
	return f, nil
}

// NewSmewFrame builds a Smew command frame.
func NewSmewFrame(msgid, folderScope string) (*Frame, error) {
	f := &Frame{Command: CmdSmew}
	if err := putString(f.MsgID[:], msgid, "msgid"); err != nil {
		return nil, err
	}
	if err := putString(f.Folder[:], folderScope, "folder"); err != nil {
		return nil, err
	}
	return f, nil
}
