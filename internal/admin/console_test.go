package admin

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"aiquest/internal/game"
)

type fakeEngine struct {
	started bool
}

func (f *fakeEngine) StartGame(context.Context) bool {
	if f.started {
		return false
	}
	f.started = true
	return true
}

type fakeKicker struct {
	known map[string]bool
}

func (f *fakeKicker) Kick(username string) bool {
	return f.known[username]
}

type fakeBroadcaster struct {
	lines []string
}

func (f *fakeBroadcaster) ToAll(line string, _ ...string) {
	f.lines = append(f.lines, line)
}

func newTestConsole(t *testing.T, active bool, players ...string) (*Console, *fakeEngine, *fakeBroadcaster, *bytes.Buffer, *game.World) {
	t.Helper()

	w := game.NewWorld(8, "metro", nil)
	for _, u := range players {
		if err := w.AddPlayer(u); err != nil {
			t.Fatalf("adding %q: %v", u, err)
		}
	}
	if active {
		w.StartGame()
	}

	engine := &fakeEngine{started: active}
	bcast := &fakeBroadcaster{}
	out := &bytes.Buffer{}
	kicker := &fakeKicker{known: map[string]bool{}}
	for _, u := range players {
		kicker.known[u] = true
	}

	c := NewConsole(w, engine, kicker, bcast, strings.NewReader(""), out)
	return c, engine, bcast, out, w
}

func TestConsole_ClosedInputStopsServer(t *testing.T) {
	c, _, _, _, _ := newTestConsole(t, false)

	// The console reads from an already-exhausted input, so Start must
	// return an error and take the server down with it.
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(context.Background())
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error from Start on closed input")
		}
		if !strings.Contains(err.Error(), "input closed") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after input closed")
	}
}

func TestConsole_Say(t *testing.T) {
	c, _, bcast, out, _ := newTestConsole(t, false, "alice")

	c.handle(context.Background(), "/say the server restarts in five minutes")

	testutil.AssertEqual(t, "broadcasts", len(bcast.lines), 1)
	testutil.AssertEqual(t, "line", bcast.lines[0], "SYSTEM [ADMIN] the server restarts in five minutes")
	if !strings.Contains(out.String(), "Sent to everyone:") {
		t.Error("missing console confirmation")
	}
}

func TestConsole_Say_NoMessage(t *testing.T) {
	c, _, bcast, out, _ := newTestConsole(t, false)

	c.handle(context.Background(), "/say")

	testutil.AssertEqual(t, "broadcasts", len(bcast.lines), 0)
	if !strings.Contains(out.String(), "Usage: /say") {
		t.Error("missing usage hint")
	}
}

func TestConsole_Kick(t *testing.T) {
	tests := map[string]struct {
		target string
		expOut string
	}{
		"connected player": {
			target: "alice",
			expOut: "alice was kicked.",
		},
		"unknown player": {
			target: "ghost",
			expOut: "Player 'ghost' not found.",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c, _, _, out, _ := newTestConsole(t, false, "alice")

			c.handle(context.Background(), "/kick "+tt.target)

			if !strings.Contains(out.String(), tt.expOut) {
				t.Errorf("output missing %q, got:\n%s", tt.expOut, out.String())
			}
		})
	}
}

func TestConsole_Start(t *testing.T) {
	c, engine, _, out, _ := newTestConsole(t, false, "alice")

	c.handle(context.Background(), "/start")

	testutil.AssertEqual(t, "started", engine.started, true)
	if !strings.Contains(out.String(), "The game has started.") {
		t.Error("missing start confirmation")
	}
}

func TestConsole_Start_AlreadyActive(t *testing.T) {
	c, _, _, out, _ := newTestConsole(t, true, "alice")

	c.handle(context.Background(), "/start")

	if !strings.Contains(out.String(), "already running") {
		t.Error("an active game should refuse /start")
	}
}

func TestConsole_Clear(t *testing.T) {
	c, _, bcast, out, w := newTestConsole(t, true, "alice")

	c.handle(context.Background(), "/clear")

	testutil.AssertEqual(t, "back in lobby", w.IsActive(), false)
	testutil.AssertEqual(t, "broadcasts", len(bcast.lines), 2)
	testutil.AssertEqual(t, "phase notice", bcast.lines[1], "SYSTEM STATE_UPDATE LOBBY")
	if !strings.Contains(out.String(), "Game reset to lobby.") {
		t.Error("missing reset confirmation")
	}
}

func TestConsole_Clear_InLobby(t *testing.T) {
	c, _, bcast, out, _ := newTestConsole(t, false, "alice")

	c.handle(context.Background(), "/clear")

	testutil.AssertEqual(t, "broadcasts", len(bcast.lines), 0)
	if !strings.Contains(out.String(), "/clear only works while a game is running.") {
		t.Error("lobby /clear should be refused")
	}
}

func TestConsole_Weights(t *testing.T) {
	tests := map[string]struct {
		args   string
		expOut string
	}{
		"valid": {
			args:   "primitive=40 atmospheric=20 dissonance=20 uncertainty=20",
			expOut: "Fear weights updated.",
		},
		"missing value": {
			args:   "primitive",
			expOut: "expected name=value",
		},
		"bad number": {
			args:   "primitive=lots",
			expOut: `Bad weight value "lots".`,
		},
		"unknown category": {
			args:   "cosmic=40",
			expOut: "Setting weights:",
		},
		"no args": {
			args:   "",
			expOut: "Usage: /weights",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c, _, _, out, _ := newTestConsole(t, true, "alice")

			c.handle(context.Background(), strings.TrimSpace("/weights "+tt.args))

			if !strings.Contains(out.String(), tt.expOut) {
				t.Errorf("output missing %q, got:\n%s", tt.expOut, out.String())
			}
		})
	}
}

func TestConsole_Set(t *testing.T) {
	c, _, _, out, w := newTestConsole(t, true, "alice")

	c.handle(context.Background(), "/set immersion_turns 3")

	testutil.AssertEqual(t, "applied", w.Tunables().ImmersionTurns, 3)
	if !strings.Contains(out.String(), "immersion_turns set to 3.") {
		t.Error("missing confirmation")
	}
}

func TestConsole_Help_PhaseDependent(t *testing.T) {
	lobby, _, _, lobbyOut, _ := newTestConsole(t, false)
	lobby.handle(context.Background(), "/help")
	if !strings.Contains(lobbyOut.String(), "/start") {
		t.Error("lobby help should offer /start")
	}
	if strings.Contains(lobbyOut.String(), "/clear") {
		t.Error("lobby help should not offer /clear")
	}

	active, _, _, activeOut, _ := newTestConsole(t, true, "alice")
	active.handle(context.Background(), "/help")
	if !strings.Contains(activeOut.String(), "/clear") {
		t.Error("active help should offer /clear")
	}
	if strings.Contains(activeOut.String(), "/start") {
		t.Error("active help should not offer /start")
	}
}

func TestConsole_Stats(t *testing.T) {
	c, _, _, out, _ := newTestConsole(t, true, "alice")

	c.handle(context.Background(), "/stats")

	for _, want := range []string{"Phase", "ACTIVE", "weight primitive", "immersion_turns"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stats output missing %q", want)
		}
	}
}
