package game

import "slices"

// StatusEffect is a temporary or permanent condition on a player. Effects
// with a duration tick down once per turn and expire at zero.
type StatusEffect struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DurationTurns *int   `json:"duration_turns,omitempty"`
	IsPositive    bool   `json:"is_positive,omitempty"`
}

// HealthyEffect is the implicit default effect a player falls back to when
// nothing else is active.
func HealthyEffect() StatusEffect {
	return StatusEffect{
		Name:        "healthy",
		Description: "In perfect shape.",
		IsPositive:  true,
	}
}

// Player is the pure data model for a player's game state. It carries no
// network or session concerns. Guarded by the owning World's mutex.
type Player struct {
	Username        string
	LocationName    string // empty while in the lobby
	Inventory       []string
	StatusEffects   []StatusEffect
	PersonalHistory []string
}

func NewPlayer(username string) *Player {
	return &Player{
		Username:      username,
		Inventory:     defaultInventory(),
		StatusEffects: []StatusEffect{HealthyEffect()},
	}
}

func defaultInventory() []string {
	return []string{"flashlight"}
}

// Reset restores lobby defaults after a game reset.
func (p *Player) Reset() {
	p.LocationName = ""
	p.Inventory = defaultInventory()
	p.StatusEffects = []StatusEffect{HealthyEffect()}
	p.PersonalHistory = nil
}

// AddItem appends an item unless already held.
func (p *Player) AddItem(item string) bool {
	if slices.Contains(p.Inventory, item) {
		return false
	}
	p.Inventory = append(p.Inventory, item)
	return true
}

// RemoveItem drops every copy of an item.
func (p *Player) RemoveItem(item string) {
	p.Inventory = slices.DeleteFunc(p.Inventory, func(s string) bool { return s == item })
}

// clone returns a deep copy safe to hand out past the world lock.
func (p *Player) clone() Player {
	cp := *p
	cp.Inventory = slices.Clone(p.Inventory)
	cp.StatusEffects = slices.Clone(p.StatusEffects)
	cp.PersonalHistory = slices.Clone(p.PersonalHistory)
	for i, e := range cp.StatusEffects {
		if e.DurationTurns != nil {
			d := *e.DurationTurns
			cp.StatusEffects[i].DurationTurns = &d
		}
	}
	return cp
}
