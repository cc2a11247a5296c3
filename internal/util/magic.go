package util

import "fmt"

// MagicTable maps a strategy's magic number to its class name, seeded with
// the fleet's built-in strategies. The Trade Sync Service consults it when
// synthesizing a Trade row from broker history for a position it has never
// seen locally. Hosts may extend it with their own strategies.
type MagicTable struct {
	entries map[int]string
}

// DefaultMagicTable returns the seed table: the full magic-to-strategy
// mapping the Trade Sync Service has historically reconciled against
// (magics 1-3), plus the magic number internal/strategy/examples'
// MeanReversionStrategy ships with (10).
func DefaultMagicTable() *MagicTable {
	return &MagicTable{entries: map[int]string{
		1:  "SimpleTimeStrategy",
		2:  "SimpleTimeStrategyGBP",
		3:  "SimpleTimeStrategyXAU",
		10: "MeanReversionStrategy",
	}}
}

// Register adds or overrides a magic number -> strategy name mapping.
func (m *MagicTable) Register(magic int, strategyName string) {
	if m.entries == nil {
		m.entries = make(map[int]string)
	}
	m.entries[magic] = strategyName
}

// StrategyName resolves a magic number to a strategy class name, falling
// back to "Unknown_M<magic>" for numbers the table doesn't know about.
func (m *MagicTable) StrategyName(magic int) string {
	if name, ok := m.entries[magic]; ok {
		return name
	}
	return fmt.Sprintf("Unknown_M%d", magic)
}
