// Package slotcatalog groups derived time slots into part-of-day buckets for
// booking screens. It only reads slots; availability is never changed here.
package slotcatalog

import (
	"sort"

	"github.com/hackgods/clinic-access-scheduling/internal/availability"
)

// Group is one category with its slots in start-time order.
type Group struct {
	Category availability.Category
	Slots    []availability.TimeSlot
}

// Categorize buckets slots by category. Each bucket is ordered by start time,
// then by slot id.
func Categorize(slots []availability.TimeSlot) map[availability.Category][]availability.TimeSlot {
	out := make(map[availability.Category][]availability.TimeSlot)
	for _, s := range slots {
		out[s.Category] = append(out[s.Category], s)
	}
	for c := range out {
		sortSlots(out[c])
	}
	return out
}

// Groups is Categorize emitted in display order. Empty categories are
// skipped; unknown categories follow the known ones in numeric order.
func Groups(slots []availability.TimeSlot) []Group {
	byCategory := Categorize(slots)

	cats := make([]availability.Category, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	groups := make([]Group, 0, len(cats))
	for _, c := range cats {
		groups = append(groups, Group{Category: c, Slots: byCategory[c]})
	}
	return groups
}

func sortSlots(slots []availability.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		return slots[i].ID < slots[j].ID
	})
}

// Chip is the rendering hint for one slot button.
type Chip struct {
	SlotID     string `json:"slot_id"`
	Label      string `json:"label"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Category   string `json:"category"`
	Selectable bool   `json:"selectable"`
}

func ChipFor(slot availability.TimeSlot) Chip {
	return Chip{
		SlotID:     slot.ID,
		Label:      slot.StartTime.String() + " - " + slot.EndTime.String(),
		Start:      slot.StartTime.String(),
		End:        slot.EndTime.String(),
		Category:   slot.Category.String(),
		Selectable: slot.IsAvailable,
	}
}

// Section is a category heading with its chips.
type Section struct {
	Category string `json:"category"`
	Chips    []Chip `json:"chips"`
}

// Sections renders Groups as chips.
func Sections(slots []availability.TimeSlot) []Section {
	groups := Groups(slots)
	sections := make([]Section, 0, len(groups))
	for _, g := range groups {
		chips := make([]Chip, 0, len(g.Slots))
		for _, s := range g.Slots {
			chips = append(chips, ChipFor(s))
		}
		sections = append(sections, Section{Category: g.Category.String(), Chips: chips})
	}
	return sections
}

// Find returns the slot with the given id.
func Find(slots []availability.TimeSlot, id string) (availability.TimeSlot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return availability.TimeSlot{}, false
}
