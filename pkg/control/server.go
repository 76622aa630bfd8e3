package control

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/log"
)

// Server listens on a SEQPACKET control socket and serves one Session
// per accepted connection (spec.md §6).
type Server struct {
	ln     net.Listener
	disp   Dispatcher
	logger zerolog.Logger
}

// Listen creates the control socket at path, mode 0700 after creation
// (spec.md §6). A stale socket file left by an unclean shutdown is
// removed first so the bind does not fail with "address in use".
func Listen(path string, disp Dispatcher) (*Server, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale control socket: %w", err)
	}

	ln, err := net.Listen("unixpacket", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod control socket: %w", err)
	}

	return &Server{ln: ln, disp: disp, logger: log.WithComponent("control")}, nil
}

// Serve accepts connections, each served by its own Session goroutine,
// until ctx is done or the listener is closed.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Warn().Err(err).Msg("accept failed")
				return
			}
		}
		go newSession(conn, s.disp).Serve()
	}
}

// Close tears down the listener outside of a Serve loop.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Addr returns the listener's address (the socket path).
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}
