// Package client is mailestctl's dialer: it encodes one control.Frame,
// sends it over the SEQPACKET control socket, and reads back the
// single reply packet (one or more lines) the daemon's control session
// produces.
package client
