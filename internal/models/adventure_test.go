package models

import (
	"testing"
)

func TestDefaultsForClass(t *testing.T) {
	cases := []struct {
		class string
		hp    int
		gold  int
	}{
		{"warrior", 30, 10},
		{"Mage", 20, 15},
		{"ROGUE", 24, 25},
		{"cleric", 26, 12},
		{"ranger", 26, 15},
		{"necromancer", 30, 10}, // unknown falls back to warrior
	}
	for _, tc := range cases {
		d := DefaultsForClass(tc.class)
		if d.HP != tc.hp || d.Gold != tc.gold {
			t.Errorf("%s: hp=%d gold=%d, want hp=%d gold=%d", tc.class, d.HP, d.Gold, tc.hp, tc.gold)
		}
		if len(d.Inventory) != 3 {
			t.Errorf("%s: inventory has %d items", tc.class, len(d.Inventory))
		}
	}

	if KnownClass("necromancer") {
		t.Errorf("necromancer reported as known")
	}
	if !KnownClass("Warrior") {
		t.Errorf("warrior not known case-insensitively")
	}
}

func TestCampaignValid(t *testing.T) {
	valid := Campaign{Title: "T", Acts: []string{"a"}, PossibleEndings: []string{"e"}}
	if !valid.Valid() {
		t.Errorf("complete campaign reported invalid")
	}
	for _, c := range []Campaign{
		{},
		{Title: "T", PossibleEndings: []string{"e"}},
		{Title: "T", Acts: []string{"a"}},
	} {
		if c.Valid() {
			t.Errorf("incomplete campaign %+v reported valid", c)
		}
	}
}

func TestAdventureCampaignRoundTrip(t *testing.T) {
	adv := &Adventure{}
	want := Campaign{Title: "The Ember Crown", Acts: []string{"one"}, PossibleEndings: []string{"end"}}
	if err := adv.SetCampaign(want); err != nil {
		t.Fatal(err)
	}
	got, err := adv.Campaign()
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != want.Title || len(got.Acts) != 1 {
		t.Errorf("campaign round trip lost data: %+v", got)
	}
}

func TestInventoryPreservesOrder(t *testing.T) {
	adv := &Adventure{}
	adv.SetInventory([]string{"Greatsword", "Chainmail", "Healing Potion"})
	got := adv.Inventory()
	if len(got) != 3 || got[0] != "Greatsword" || got[2] != "Healing Potion" {
		t.Errorf("inventory order not preserved: %v", got)
	}

	adv.SetInventory(nil)
	if got := adv.Inventory(); len(got) != 0 {
		t.Errorf("nil inventory stored as %v", got)
	}
}

func TestTurnLimitReached(t *testing.T) {
	cases := []struct {
		max   int
		count int
		want  bool
	}{
		{10, 9, false},
		{10, 10, true},
		{10, 11, true},
		{MaxTurnsUnlimited, 1000, false},
	}
	for _, tc := range cases {
		adv := &Adventure{MaxTurns: tc.max, TurnCount: tc.count}
		if got := adv.TurnLimitReached(); got != tc.want {
			t.Errorf("max=%d count=%d: got %v", tc.max, tc.count, got)
		}
	}
}
