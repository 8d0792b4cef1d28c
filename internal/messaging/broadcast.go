package messaging

import (
	"log/slog"

	"aiquest/internal/game"
)

// PlayerSubject is the per-player delivery subject a session subscribes to.
// One subject per player, one writer goroutine per connection, gives strictly
// ordered delivery to each socket.
func PlayerSubject(username string) string {
	return "player." + username
}

// Publisher is the minimal publish surface the broadcaster needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Broadcaster resolves location groups to players through the world and
// fans messages out over per-player subjects.
type Broadcaster struct {
	world *game.World
	pub   Publisher
}

func NewBroadcaster(world *game.World, pub Publisher) *Broadcaster {
	return &Broadcaster{world: world, pub: pub}
}

// ToLocations delivers a line to every player present in the given
// locations, minus the excluded usernames.
func (b *Broadcaster) ToLocations(locs []string, line string, exclude ...string) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	for _, username := range b.world.PlayersInLocations(locs) {
		if _, skip := excluded[username]; skip {
			continue
		}
		b.toPlayer(username, line)
	}
}

// ToAll delivers a line to every connected player, lobby included.
func (b *Broadcaster) ToAll(line string, exclude ...string) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	for _, username := range b.world.Usernames() {
		if _, skip := excluded[username]; skip {
			continue
		}
		b.toPlayer(username, line)
	}
}

// ToPlayer delivers a line to a single player.
func (b *Broadcaster) ToPlayer(username, line string) {
	b.toPlayer(username, line)
}

func (b *Broadcaster) toPlayer(username, line string) {
	if err := b.pub.Publish(PlayerSubject(username), []byte(line)); err != nil {
		slog.Warn("publishing to player", "username", username, "error", err)
	}
}
