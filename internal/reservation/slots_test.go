package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

func utc(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func window(fromH, fromM, toH, toM int) scheduling.Interval {
	return scheduling.Interval{Start: utc(fromH, fromM), End: utc(toH, toM)}
}

func TestFreeSlotsTilesWindow(t *testing.T) {
	slots := FreeSlots([]scheduling.Interval{window(9, 0, 12, 0)}, nil, 30*time.Minute)

	require.Len(t, slots, 6)
	for i, slot := range slots {
		assert.Equal(t, utc(9, 0).Add(time.Duration(i)*30*time.Minute), slot.Start)
		assert.Equal(t, 30*time.Minute, slot.Duration())
	}
	assert.Equal(t, utc(12, 0), slots[5].End)
}

func TestFreeSlotsDropsTrailingRemainder(t *testing.T) {
	slots := FreeSlots([]scheduling.Interval{window(9, 0, 10, 45)}, nil, 30*time.Minute)
	require.Len(t, slots, 3)
	assert.Equal(t, utc(10, 30), slots[2].End)

	assert.Empty(t, FreeSlots([]scheduling.Interval{window(9, 0, 9, 45)}, nil, time.Hour))
}

func TestFreeSlotsRemovesOccupied(t *testing.T) {
	occupied := []scheduling.Interval{
		window(9, 0, 9, 30),
		// Straddles two candidate slots.
		window(10, 15, 10, 45),
	}
	slots := FreeSlots([]scheduling.Interval{window(9, 0, 12, 0)}, occupied, 30*time.Minute)

	var starts []time.Time
	for _, s := range slots {
		starts = append(starts, s.Start)
	}
	assert.Equal(t, []time.Time{utc(9, 30), utc(11, 0), utc(11, 30)}, starts)
}

func TestFreeSlotsTouchingOccupiedDoesNotBlock(t *testing.T) {
	occupied := []scheduling.Interval{window(8, 0, 9, 0), window(12, 0, 13, 0)}
	slots := FreeSlots([]scheduling.Interval{window(9, 0, 10, 0)}, occupied, 30*time.Minute)
	assert.Len(t, slots, 2)
}

func TestFreeSlotsKeepsWindowOrder(t *testing.T) {
	windows := []scheduling.Interval{window(9, 0, 10, 0), window(14, 0, 15, 0)}
	slots := FreeSlots(windows, nil, time.Hour)
	require.Len(t, slots, 2)
	assert.Equal(t, utc(9, 0), slots[0].Start)
	assert.Equal(t, utc(14, 0), slots[1].Start)
}

func TestFreeSlotsDeterministic(t *testing.T) {
	windows := []scheduling.Interval{window(9, 0, 12, 0), window(14, 0, 17, 0)}
	occupied := []scheduling.Interval{window(10, 0, 11, 0), window(15, 30, 16, 0)}

	first := FreeSlots(windows, occupied, 30*time.Minute)
	second := FreeSlots(windows, occupied, 30*time.Minute)
	assert.Equal(t, first, second)

	for _, slot := range first {
		assert.False(t, scheduling.OverlapsAny(slot, occupied))
	}
}

func TestFreeSlotsNonPositiveDuration(t *testing.T) {
	slots := FreeSlots([]scheduling.Interval{window(9, 0, 12, 0)}, nil, 0)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}
