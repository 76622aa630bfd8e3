package control

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/events"
	"github.com/mailest/mailestd/pkg/log"
	"github.com/mailest/mailestd/pkg/types"
)

// idleTimeout is MAILESTCTL_IDLE_TIMEOUT (spec.md §4.8).
const idleTimeout = 60 * time.Second

// Dispatcher is what a control Session needs from the daemon facade:
// each method allocates a request id, subscribes it on the inform
// bus, submits the corresponding task, and returns both — so the
// session can never race a task's completion against its own
// subscription. Consumer-defined per Go convention; pkg/daemon
// implements it.
type Dispatcher interface {
	Update(folder string) (srcID uint64, sub events.Subscriber, err error)
	Search(cond types.SearchCond) (srcID uint64, sub events.Subscriber)
	Smew(msgid, folderScope string) (srcID uint64, sub events.Subscriber)
	Unsubscribe(srcID uint64)

	Suspend()
	Resume()
	Stop()
	SetDebug(on bool)
}

// Session is one accepted connection's command/reply loop (spec.md
// §4.8). One goroutine per connection is Go's idiomatic substitute for
// the source's single event loop multiplexing many per-connection
// state machines — the scheduler does the multiplexing instead.
type Session struct {
	conn   net.Conn
	disp   Dispatcher
	logger zerolog.Logger
}

func newSession(conn net.Conn, disp Dispatcher) *Session {
	logger := log.WithComponent("control").With().Str("session_id", uuid.NewString()).Logger()
	return &Session{conn: conn, disp: disp, logger: logger}
}

// Serve reads and dispatches frames until the client disconnects, a
// protocol error occurs, or the connection sits idle past
// idleTimeout. It always closes conn before returning.
func (s *Session) Serve() {
	defer s.conn.Close()

	buf := make([]byte, FrameSize)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Msg("session read ended")
			}
			return
		}
		if n != FrameSize {
			s.logger.Warn().Int("bytes", n).Msg("malformed command frame, tearing down session")
			return
		}

		frame, err := Decode(bytes.NewReader(buf[:n]))
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to decode command frame")
			return
		}

		if !s.dispatch(frame) {
			return
		}
	}
}

// dispatch handles one frame, returning false when the session should
// be torn down (a Stop command, a protocol violation, an empty
// Search/Smew result, or a failed reply write).
func (s *Session) dispatch(f *Frame) bool {
	switch f.Command {
	case CmdNone:
		return true
	case CmdDebugUp:
		s.disp.SetDebug(true)
		return true
	case CmdDebugDown:
		s.disp.SetDebug(false)
		return true
	case CmdSuspend:
		s.disp.Suspend()
		return true
	case CmdResume:
		s.disp.Resume()
		return true
	case CmdStop:
		s.disp.Stop()
		return false
	case CmdUpdate:
		return s.runUpdate(f.FolderStr())
	case CmdSearch:
		return s.runSearch(f.SearchCond())
	case CmdSmew:
		return s.runSmew(f.SmewMsgIDStr(), f.FolderStr())
	default:
		s.logger.Warn().Str("command", f.Command.String()).Msg("unknown command, tearing down session")
		return false
	}
}

// runUpdate dispatches a gather and reports its single terminal
// inform as one of the three reply lines spec.md §6 defines.
func (s *Session) runUpdate(folder string) bool {
	srcID, sub, err := s.disp.Update(folder)
	if err != nil {
		return s.writeLine(err.Error() + "...failed\n")
	}
	defer s.disp.Unsubscribe(srcID)

	inform, ok := s.waitInform(sub)
	if !ok {
		return true
	}
	return s.writeLine(formatGatherReply(inform.Payload))
}

// runSearch and runSmew both resolve to a single terminal inform
// carrying every "<id>\t<uri>\n" (or "<uri>\n") hit line already
// joined, so there is nothing to stream incrementally: write it if
// non-empty; an empty result (or no inform) closes the session without
// a reply, which the client reads as the end of an empty result.
func (s *Session) runSearch(cond types.SearchCond) bool {
	srcID, sub := s.disp.Search(cond)
	defer s.disp.Unsubscribe(srcID)

	inform, ok := s.waitInform(sub)
	if ok && len(inform.Payload) > 0 {
		return s.writeLine(string(inform.Payload))
	}
	return false
}

func (s *Session) runSmew(msgid, folderScope string) bool {
	srcID, sub := s.disp.Smew(msgid, folderScope)
	defer s.disp.Unsubscribe(srcID)

	inform, ok := s.waitInform(sub)
	if ok && len(inform.Payload) > 0 {
		return s.writeLine(string(inform.Payload))
	}
	return false
}

// waitInform blocks for the one inform a dispatched command produces.
// The idleTimeout bound here is a backstop against a worker that never
// replies; it is not itself part of the documented protocol timeout,
// which governs socket I/O idleness rather than task completion.
func (s *Session) waitInform(sub events.Subscriber) (*events.Inform, bool) {
	select {
	case inform, ok := <-sub:
		if !ok {
			return nil, false
		}
		return inform, true
	case <-time.After(idleTimeout):
		s.logger.Warn().Msg("timed out waiting for task completion")
		return nil, false
	}
}

func (s *Session) writeLine(line string) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(idleTimeout)); err != nil {
		return false
	}
	if _, err := io.WriteString(s.conn, line); err != nil {
		s.logger.Debug().Err(err).Msg("write failed, tearing down session")
		return false
	}
	return true
}

// formatGatherReply turns an informGather payload (pkg/dbworker:
// 'E'+message on failure, 'K'+completed put count+'\t'+completed
// delete count on success) into the reply line mailestctl prints
// (spec.md §6). The report is puts-first: any completed put reports
// "new messages", falling back to "old messages" only when nothing
// was put but something was deleted.
func formatGatherReply(payload []byte) string {
	if len(payload) == 0 {
		return "new messages...done\n"
	}
	tag, rest := payload[0], payload[1:]
	switch tag {
	case 'E':
		return string(rest) + "...failed\n"
	case 'K':
		puts, dels := parseGatherCounts(rest)
		if puts == 0 && dels != 0 {
			return "old messages...done\n"
		}
		return "new messages...done\n"
	default:
		return "new messages...done\n"
	}
}

// parseGatherCounts splits a 'K' payload's "<puts>\t<dels>" body.
// Either field missing or malformed reads as zero; formatGatherReply
// then reports "old messages" only if dels still parsed as nonzero.
func parseGatherCounts(rest []byte) (puts, dels uint64) {
	fields := bytes.SplitN(rest, []byte("\t"), 2)
	puts, _ = strconv.ParseUint(string(fields[0]), 10, 64)
	if len(fields) == 2 {
		dels, _ = strconv.ParseUint(string(fields[1]), 10, 64)
	}
	return puts, dels
}
