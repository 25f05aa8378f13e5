package models

import "strings"

// ClassDefaults holds the starting derived state for a character class.
// Restart resets an adventure back to these values.
type ClassDefaults struct {
	HP        int
	Gold      int
	Inventory []string
}

var classDefaults = map[string]ClassDefaults{
	"warrior": {HP: 30, Gold: 10, Inventory: []string{"Greatsword", "Chainmail", "Healing Potion"}},
	"mage":    {HP: 20, Gold: 15, Inventory: []string{"Oak Staff", "Spellbook", "Mana Potion"}},
	"rogue":   {HP: 24, Gold: 25, Inventory: []string{"Twin Daggers", "Lockpicks", "Smoke Bomb"}},
	"cleric":  {HP: 26, Gold: 12, Inventory: []string{"Mace", "Holy Symbol", "Healing Potion"}},
	"ranger":  {HP: 26, Gold: 15, Inventory: []string{"Longbow", "Quiver of Arrows", "Hunting Knife"}},
}

// DefaultsForClass returns the starting state for a class, falling back to
// warrior for unknown class names.
func DefaultsForClass(class string) ClassDefaults {
	if d, ok := classDefaults[strings.ToLower(class)]; ok {
		return d
	}
	return classDefaults["warrior"]
}

// KnownClass reports whether the class name has registered defaults.
func KnownClass(class string) bool {
	_, ok := classDefaults[strings.ToLower(class)]
	return ok
}
