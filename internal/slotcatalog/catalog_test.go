package slotcatalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-access-scheduling/internal/availability"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

func tod(h, m int) timewindow.TimeOfDay { return timewindow.MustTimeOfDay(h, m) }

func daySlots(t *testing.T) []availability.TimeSlot {
	t.Helper()
	day := availability.WeeklyAvailability{
		Weekday:   timewindow.Monday,
		IsActive:  true,
		StartTime: tod(8, 0),
		EndTime:   tod(19, 0),
	}
	booked := []timewindow.Window{{Start: tod(12, 0), End: tod(12, 30)}}
	slots := availability.DeriveSlots(day, 30*time.Minute, booked)
	require.Len(t, slots, 22)
	return slots
}

func reversed(in []availability.TimeSlot) []availability.TimeSlot {
	out := make([]availability.TimeSlot, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

func TestCategorizePartitionsWithoutLoss(t *testing.T) {
	slots := daySlots(t)
	byCategory := Categorize(reversed(slots))

	total := 0
	seen := make(map[string]bool)
	for c, group := range byCategory {
		total += len(group)
		for i, s := range group {
			assert.Equal(t, c, s.Category)
			assert.False(t, seen[s.ID], "slot %s duplicated", s.ID)
			seen[s.ID] = true
			if i > 0 {
				assert.Less(t, group[i-1].StartTime, s.StartTime)
			}
		}
	}
	assert.Equal(t, len(slots), total)
	assert.Len(t, byCategory[availability.CategoryMorning], 8)
	assert.Len(t, byCategory[availability.CategoryAfternoon], 10)
	assert.Len(t, byCategory[availability.CategoryEvening], 4)
}

func TestGroupsFixedOrder(t *testing.T) {
	groups := Groups(reversed(daySlots(t)))
	require.Len(t, groups, 3)
	assert.Equal(t, availability.CategoryMorning, groups[0].Category)
	assert.Equal(t, availability.CategoryAfternoon, groups[1].Category)
	assert.Equal(t, availability.CategoryEvening, groups[2].Category)
	assert.Equal(t, "0800-0830", groups[0].Slots[0].ID)
}

func TestGroupsSkipsEmptyCategories(t *testing.T) {
	day := availability.WeeklyAvailability{IsActive: true, StartTime: tod(13, 0), EndTime: tod(14, 0)}
	groups := Groups(availability.DeriveSlots(day, 30*time.Minute, nil))
	require.Len(t, groups, 1)
	assert.Equal(t, availability.CategoryAfternoon, groups[0].Category)

	assert.Empty(t, Groups(nil))
}

func TestCategorizeTieBreakBySlotID(t *testing.T) {
	slots := []availability.TimeSlot{
		{ID: "b", StartTime: tod(9, 0), EndTime: tod(9, 30), Category: availability.CategoryMorning},
		{ID: "a", StartTime: tod(9, 0), EndTime: tod(9, 30), Category: availability.CategoryMorning},
	}
	got := Categorize(slots)[availability.CategoryMorning]
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestChipMirrorsAvailability(t *testing.T) {
	slots := daySlots(t)
	for _, s := range slots {
		chip := ChipFor(s)
		assert.Equal(t, s.IsAvailable, chip.Selectable)
		assert.Equal(t, s.ID, chip.SlotID)
	}

	booked, ok := Find(slots, "1200-1230")
	require.True(t, ok)
	chip := ChipFor(booked)
	assert.False(t, chip.Selectable)
	assert.Equal(t, "12:00 - 12:30", chip.Label)
	assert.Equal(t, "afternoon", chip.Category)
}

func TestSectionsCountsMatch(t *testing.T) {
	slots := daySlots(t)
	sections := Sections(slots)
	total := 0
	for _, s := range sections {
		total += len(s.Chips)
	}
	assert.Equal(t, len(slots), total)
	assert.Equal(t, "morning", sections[0].Category)
}
