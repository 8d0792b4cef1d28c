// Package session runs the line protocol for one connected player: login,
// command dispatch, and delivery of broadcast messages in order.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"aiquest/internal/display"
	"aiquest/internal/game"
	"aiquest/internal/messaging"
	"aiquest/internal/protocol"
)

// Subscriber delivers published messages for a subject until the returned
// function is called.
type Subscriber interface {
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// Engine is the part of the turn machinery sessions drive.
type Engine interface {
	HandleAction(ctx context.Context, username, action string) error
	OnPlayerRemoved(ctx context.Context, lastLocation string)
}

type Manager struct {
	world  *game.World
	engine Engine
	bcast  *messaging.Broadcaster
	subs   Subscriber

	loginTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(world *game.World, engine Engine, bcast *messaging.Broadcaster, subs Subscriber) *Manager {
	return &Manager{
		world:        world,
		engine:       engine,
		bcast:        bcast,
		subs:         subs,
		loginTimeout: 30 * time.Second,
		sessions:     map[string]*Session{},
	}
}

// Start blocks until shutdown, then kicks every connected session.
func (m *Manager) Start(ctx context.Context) error {
	<-ctx.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.kick("The server is shutting down.")
	}
	return nil
}

// RunSession owns a connection from login to cleanup. It returns when the
// player disconnects, is kicked, or the context is cancelled.
func (m *Manager) RunSession(ctx context.Context, conn io.ReadWriter) error {
	s := newSession(conn)
	defer s.stop()

	username, err := s.login(ctx, m.world, m.loginTimeout)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[username] = s
	m.mu.Unlock()

	unsub, err := m.subs.Subscribe(messaging.PlayerSubject(username), s.deliver)
	if err != nil {
		m.drop(ctx, username)
		return err
	}
	defer unsub()

	m.announceJoin(s, username)
	defer m.drop(ctx, username)

	slog.InfoContext(ctx, "player logged in", "username", username)
	return s.run(ctx, m, username)
}

// Kick disconnects a player with a notice. Reports whether the player was
// connected.
func (m *Manager) Kick(username string) bool {
	m.mu.Lock()
	s, ok := m.sessions[username]
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.kick("You have been removed by the administrator.")
	return true
}

// announceJoin tells the new player where things stand and tells everyone
// else they arrived.
func (m *Manager) announceJoin(s *Session, username string) {
	s.writeLine(protocol.Welcome(username))
	s.writeLine(protocol.StateUpdate(m.world.Phase().String()))

	if loc, ok := m.world.LocationOf(username); ok && m.world.IsActive() {
		m.bcast.ToLocations([]string{loc}, protocol.System(username+" joined."), username)
		if desc, ok := m.world.LocationDescription(loc); ok {
			s.writeLine(protocol.Narrate(display.Wrap(desc)))
		}
		s.writeLine(protocol.NarrationEnd)
		return
	}

	m.bcast.ToAll(protocol.LobbyUpdate(m.world.Usernames()))
	s.writeLine(protocol.System("Please wait for the game to begin."))
	s.writeLine(protocol.NarrationEnd)
}

// drop removes the player from the registry and the world and notifies
// whoever could see them.
func (m *Manager) drop(ctx context.Context, username string) {
	m.mu.Lock()
	delete(m.sessions, username)
	m.mu.Unlock()

	lastLoc, ok := m.world.RemovePlayer(username)
	if !ok {
		return
	}
	slog.InfoContext(ctx, "player removed", "username", username, "last_location", lastLoc)

	if lastLoc != "" {
		component := m.world.ConnectedComponent(lastLoc)
		m.bcast.ToLocations(component, protocol.System(username+" left the game."), username)
		m.engine.OnPlayerRemoved(ctx, lastLoc)
		return
	}

	if remaining := m.world.Usernames(); len(remaining) > 0 {
		m.bcast.ToAll(protocol.LobbyUpdate(remaining))
	}
}
