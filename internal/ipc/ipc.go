// Package ipc is the daemon's local control channel: one JSON request and
// one JSON response per unix socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// Commands understood by the daemon.
const (
	CmdTrigger = "trigger"
	CmdStop    = "stop"
	CmdStatus  = "status"
)

// ControlMessage is a request from a client.
type ControlMessage struct {
	Cmd string `json:"cmd"`
}

// Reply is the daemon's answer. Status is set for CmdStatus.
type Reply struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}

// Handler answers one control message.
type Handler func(ctx context.Context, msg ControlMessage) Reply

// ioTimeout bounds how long a client may take to send or read.
const ioTimeout = 5 * time.Second

// Server accepts control connections on a unix socket.
type Server struct {
	path    string
	handler Handler

	mu sync.Mutex
	ln net.Listener
}

func NewServer(path string, handler Handler) *Server {
	return &Server{path: path, handler: handler}
}

// Listen binds the socket, replacing a stale one left by a previous run.
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ipc: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc: listen: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("ipc: chmod socket: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled. Listen must have been
// called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Serve called before Listen")
	}
	slog.Info("Control socket listening", "path", s.path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer os.Remove(s.path)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var msg ControlMessage
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		reply = Reply{Error: "malformed request"}
	} else {
		slog.Debug("Control command", "cmd", msg.Cmd)
		reply = s.handler(ctx, msg)
	}
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		slog.Warn("Failed to write control reply", "err", err)
	}
}

// SendCommand sends cmd to the daemon listening on path and returns its
// reply. A reply with OK unset is returned as an error.
func SendCommand(ctx context.Context, path, cmd string) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return Reply{}, fmt.Errorf("ipc: send: %w", err)
	}
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("ipc: read reply: %w", err)
	}
	if !reply.OK {
		return reply, fmt.Errorf("ipc: %s", reply.Error)
	}
	return reply, nil
}
