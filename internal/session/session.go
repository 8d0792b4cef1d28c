package session

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Session serializes all writes to one connection through a single
// goroutine, so narration fragments and broadcasts arrive in publish
// order.
type Session struct {
	conn io.ReadWriter

	input    chan string
	inputErr chan error
	msgs     chan []byte

	kickOnce sync.Once
	kicked   chan string
}

func newSession(conn io.ReadWriter) *Session {
	s := &Session{
		conn:     conn,
		input:    make(chan string),
		inputErr: make(chan error, 1),
		msgs:     make(chan []byte, 64),
		kicked:   make(chan string, 1),
	}

	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			s.input <- scanner.Text()
		}
		s.inputErr <- scanner.Err()
		close(s.input)
	}()

	return s
}

// deliver queues a broadcast message for the write loop, blocking while
// the client catches up. Only a session stuck past the deadline loses the
// message; delivery to that player stalls rather than dropping fragments
// mid-narration.
func (s *Session) deliver(data []byte) {
	select {
	case s.msgs <- data:
		return
	default:
	}

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case s.msgs <- data:
	case <-timer.C:
		slog.Warn("session write queue stalled, dropping message")
	}
}

func (s *Session) kick(reason string) {
	s.kickOnce.Do(func() {
		s.kicked <- reason
	})
}

func (s *Session) stop() {
	// The reader goroutine exits on its own when the connection closes.
}

// run is the post-login loop: player input, broadcast delivery, and kicks
// all funnel through one select.
func (s *Session) run(ctx context.Context, m *Manager, username string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case reason := <-s.kicked:
			s.writeLine("SYSTEM " + reason)
			return nil

		case msg := <-s.msgs:
			s.writeLine(string(msg))

		case line, ok := <-s.input:
			if !ok {
				select {
				case err := <-s.inputErr:
					return err
				default:
					return nil
				}
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			quit := m.handleLine(ctx, s, username, line)
			if quit {
				s.writeLine("SYSTEM Goodbye.")
				return nil
			}
		}
	}
}

func (s *Session) writeLine(msg string) {
	if _, err := s.conn.Write([]byte(msg + "\n")); err != nil {
		slog.Warn("writing to player connection", "error", err)
	}
}
