package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mailest/mailestd/pkg/control"
	"github.com/mailest/mailestd/pkg/types"
)

// dialTimeout bounds connecting to the control socket; replyTimeout
// bounds waiting for the one reply packet a command produces, generous
// enough to cover a large Update/Search/Smew on the daemon side.
const (
	dialTimeout  = 5 * time.Second
	replyTimeout = 5 * time.Minute
)

// Client wraps one SEQPACKET control socket connection for mailestctl's
// CLI usage: dial once, issue a single command, read its reply,
// close.
type Client struct {
	conn net.Conn
}

// NewClient dials the control socket at sockPath.
func NewClient(sockPath string) (*Client, error) {
	conn, err := net.DialTimeout("unixpacket", sockPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial control socket %s: %w", sockPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Update requests a gather over folder (empty means every included
// root folder) and returns the daemon's "...done"/"...failed" line.
func (c *Client) Update(folder string) (string, error) {
	f, err := control.NewUpdateFrame(folder)
	if err != nil {
		return "", err
	}
	return c.roundTrip(f)
}

// Search runs a query and returns every "<id>\t<uri>" hit line joined
// by newlines (empty string if nothing matched).
func (c *Client) Search(cond types.SearchCond) (string, error) {
	f, err := control.NewSearchFrame(cond)
	if err != nil {
		return "", err
	}
	return c.roundTrip(f)
}

// Smew reconstructs a message's thread and returns every surviving
// "<uri>" line joined by newlines, in ancestor-to-descendant order.
func (c *Client) Smew(msgid, folderScope string) (string, error) {
	f, err := control.NewSmewFrame(msgid, folderScope)
	if err != nil {
		return "", err
	}
	return c.roundTrip(f)
}

// Suspend pauses every worker's queue.
func (c *Client) Suspend() error {
	return c.send(control.NewSimpleFrame(control.CmdSuspend))
}

// Resume resumes every worker's queue after Suspend.
func (c *Client) Resume() error {
	return c.send(control.NewSimpleFrame(control.CmdResume))
}

// Stop shuts the daemon down.
func (c *Client) Stop() error {
	return c.send(control.NewSimpleFrame(control.CmdStop))
}

// DebugUp raises the daemon's log level to debug.
func (c *Client) DebugUp() error {
	return c.send(control.NewSimpleFrame(control.CmdDebugUp))
}

// DebugDown restores the daemon's log level to info.
func (c *Client) DebugDown() error {
	return c.send(control.NewSimpleFrame(control.CmdDebugDown))
}

// send encodes and writes f without waiting for a reply line (for the
// commands that produce none: Suspend/Resume/Stop/DebugUp/DebugDown).
func (c *Client) send(f *control.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(dialTimeout)); err != nil {
		return err
	}
	return f.Encode(c.conn)
}

// roundTrip sends f and reads back the reply packet, which holds every
// newline-terminated reply line the session wrote. A session that
// closes without replying (an empty Search/Smew result) yields "".
func (c *Client) roundTrip(f *control.Frame) (string, error) {
	if err := c.send(f); err != nil {
		return "", err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(replyTimeout)); err != nil {
		return "", err
	}

	const maxReplySize = 1 << 20
	buf := make([]byte, maxReplySize)
	n, err := c.conn.Read(buf)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return string(buf[:n]), nil
}
