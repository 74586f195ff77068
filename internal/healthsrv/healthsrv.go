// Package healthsrv exposes the supervisor's health snapshot (spec §6)
// over a Unix domain socket: one JSON document per connection, then
// close. Grounded on the teacher's internal/daemon UDS server
// (udsServer field of Daemon) — the representation at this system
// boundary is explicitly out of scope per spec.md §1/§6 ("The
// representation of this object at the system boundary ... is out of
// scope; only the structure is contractual"), so this is deliberately
// the thinnest possible wiring, not a designed IPC protocol.
package healthsrv

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"

	"station.fm/stationd/internal/supervisor"
)

// Server serves health snapshots on a Unix socket.
type Server struct {
	listener net.Listener
	sv       *supervisor.Supervisor
	logger   *slog.Logger
}

// Listen binds socketPath, removing any stale socket file left behind
// by a previous unclean exit (mirrors the teacher's PID-file cleanup
// pattern in internal/daemon/manager.go).
func Listen(socketPath string, sv *supervisor.Supervisor, logger *slog.Logger) (*Server, error) {
	_ = os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Server{listener: l, sv: sv, logger: logger}, nil
}

// Serve accepts connections until the listener is closed, writing the
// current health snapshot as JSON to each one.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			snapshot := s.sv.Health()
			if err := json.NewEncoder(conn).Encode(snapshot); err != nil {
				s.logger.Warn("healthsrv.encode_failed", "error", err)
			}
		}()
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.listener.Addr().String())
	return err
}
