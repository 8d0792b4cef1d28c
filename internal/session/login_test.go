package session

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"aiquest/internal/game"
)

// fakeConn is a one-way scripted connection: the session reads the given
// input and its writes accumulate in a buffer.
type fakeConn struct {
	io.Reader

	mu  sync.Mutex
	out bytes.Buffer
}

func newFakeConn(input string) *fakeConn {
	return &fakeConn{Reader: strings.NewReader(input)}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *fakeConn) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func TestValidUsername(t *testing.T) {
	tests := map[string]struct {
		username string
		exp      bool
	}{
		"simple":            {"alice", true},
		"digits":            {"alice42", true},
		"mixed case":        {"Alice", true},
		"max length":        {strings.Repeat("a", 20), true},
		"empty":             {"", false},
		"too long":          {strings.Repeat("a", 21), false},
		"space":             {"alice smith", false},
		"punctuation":       {"alice!", false},
		"non-ascii letters": {"ålice", false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "valid", validUsername(tt.username), tt.exp)
		})
	}
}

func TestSession_Login(t *testing.T) {
	tests := map[string]struct {
		input      string
		maxPlayers int
		existing   []string
		expUser    string
		expErr     string
		expOut     []string
	}{
		"success": {
			input:      "alice\n",
			maxPlayers: 4,
			expUser:    "alice",
			expOut:     []string{"PROMPT Enter your name: "},
		},
		"invalid name disconnects": {
			input:      "not a name!\n",
			maxPlayers: 4,
			expErr:     "invalid username",
			expOut:     []string{"ERROR Name must be 1 to 20 letters or digits."},
		},
		"taken name disconnects": {
			input:      "alice\n",
			maxPlayers: 4,
			existing:   []string{"alice"},
			expErr:     `"alice" taken`,
			expOut:     []string{"ERROR The name 'alice' is already taken."},
		},
		"full game re-prompts": {
			input:      "alice\n",
			maxPlayers: 1,
			existing:   []string{"bob"},
			expErr:     "connection closed during login",
			expOut:     []string{"ERROR The game is full. Try again shortly."},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := game.NewWorld(tt.maxPlayers, "metro", nil)
			for _, u := range tt.existing {
				if err := w.AddPlayer(u); err != nil {
					t.Fatalf("adding %q: %v", u, err)
				}
			}

			conn := newFakeConn(tt.input)
			s := newSession(conn)

			username, err := s.login(context.Background(), w, time.Second)
			if tt.expErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.expErr) {
					t.Fatalf("expected error containing %q, got %v", tt.expErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "username", username, tt.expUser)

			for _, want := range tt.expOut {
				if !strings.Contains(conn.output(), want) {
					t.Errorf("output missing %q, got:\n%s", want, conn.output())
				}
			}
		})
	}
}

func TestSession_Login_FullGameRetriesUntilSeatFrees(t *testing.T) {
	w := game.NewWorld(1, "metro", nil)
	if err := w.AddPlayer("bob"); err != nil {
		t.Fatal(err)
	}

	// The seat frees between the first and second attempt.
	r, wr := io.Pipe()
	conn := &fakeConn{Reader: r}
	s := newSession(conn)

	go func() {
		_, _ = wr.Write([]byte("alice\n"))
		for !strings.Contains(conn.output(), "ERROR The game is full.") {
			time.Sleep(time.Millisecond)
		}
		w.RemovePlayer("bob")
		_, _ = wr.Write([]byte("alice\n"))
		wr.Close()
	}()

	username, err := s.login(context.Background(), w, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "username", username, "alice")
	if !strings.Contains(conn.output(), "ERROR The game is full.") {
		t.Error("first attempt should have reported a full game")
	}
}

func TestSession_Login_Timeout(t *testing.T) {
	// A reader that never produces a line keeps the prompt waiting.
	r, wr := io.Pipe()
	defer wr.Close()

	conn := &fakeConn{Reader: r}
	s := newSession(conn)

	w := game.NewWorld(4, "metro", nil)
	_, err := s.login(context.Background(), w, 20*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "login timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(conn.out.String(), "ERROR Login timed out.") {
		t.Error("player was not told about the timeout")
	}
}
