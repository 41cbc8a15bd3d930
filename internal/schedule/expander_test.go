package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReferenceMonday(t *testing.T) {
	// 2025-10-01 is a Wednesday; its week's Monday is 2025-09-29.
	assert.Equal(t, date(2025, time.September, 29), ReferenceMonday(date(2025, time.October, 1)))
	// A Monday anchor is its own reference.
	assert.Equal(t, date(2025, time.September, 29), ReferenceMonday(date(2025, time.September, 29)))
	// Weekend anchors roll forward, never back.
	assert.Equal(t, date(2025, time.October, 6), ReferenceMonday(date(2025, time.October, 4))) // Saturday
	assert.Equal(t, date(2025, time.October, 6), ReferenceMonday(date(2025, time.October, 5))) // Sunday
}

func TestBlockOffsets(t *testing.T) {
	blocks := []Block{
		{ID: "b1", DurationWeeks: 2},
		{ID: "b2", DurationWeeks: 3},
		{ID: "b3", DurationWeeks: 1},
	}
	offsets := BlockOffsets(blocks, map[string]int{"b2": 1, "b3": 2})
	assert.Equal(t, 0, offsets["b1"])
	assert.Equal(t, 3, offsets["b2"]) // 2 weeks of b1 + 1 week delay
	assert.Equal(t, 8, offsets["b3"]) // 3 + 3 of b2 + 2 weeks delay
}

func TestBlockOffsetsIgnoresFirstBlockDelay(t *testing.T) {
	offsets := BlockOffsets([]Block{{ID: "b1", DurationWeeks: 4}}, map[string]int{"b1": 5})
	assert.Equal(t, 0, offsets["b1"])
}

func TestExpand(t *testing.T) {
	anchor := date(2025, time.October, 1) // Wednesday
	blocks := []Block{
		{ID: "b1", DurationWeeks: 2},
		{ID: "b2", DurationWeeks: 2},
	}
	placements := []Placement{
		{SessionID: "s1", BlockID: "b1", StartWeek: 0, StartDay: "Monday", StartTime: "09:00", EndWeek: 0, EndDay: "Monday", EndTime: "10:30"},
		{SessionID: "s2", BlockID: "b1", StartWeek: 1, StartDay: "wednesday", StartTime: "14:00", EndWeek: 1, EndDay: "Fri", EndTime: "16:00"},
		{SessionID: "s3", BlockID: "b2", StartWeek: 0, StartDay: "Tue", StartTime: "10:00", EndWeek: 0, EndDay: "Tue", EndTime: "12:00"},
	}

	windows, err := Expand(anchor, blocks, map[string]int{"b2": 1}, placements)
	require.NoError(t, err)
	require.Len(t, windows, 3)

	// Week 0 Monday lands before the Wednesday anchor itself.
	assert.Equal(t, time.Date(2025, time.September, 29, 9, 0, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, time.Date(2025, time.September, 29, 10, 30, 0, 0, time.UTC), windows[0].End)

	assert.Equal(t, time.Date(2025, time.October, 8, 14, 0, 0, 0, time.UTC), windows[1].Start)
	assert.Equal(t, time.Date(2025, time.October, 10, 16, 0, 0, 0, time.UTC), windows[1].End)

	// b2 starts after b1's two weeks plus a one-week delay.
	assert.Equal(t, time.Date(2025, time.October, 21, 10, 0, 0, 0, time.UTC), windows[2].Start)
}

func TestExpandNoBlockReference(t *testing.T) {
	anchor := date(2025, time.September, 29)
	placements := []Placement{
		{SessionID: "s1", StartWeek: 2, StartDay: "Thursday", StartTime: "09:00", EndWeek: 2, EndDay: "Thursday", EndTime: "17:00"},
	}
	windows, err := Expand(anchor, nil, nil, placements)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, time.Date(2025, time.October, 16, 9, 0, 0, 0, time.UTC), windows[0].Start)
}

func TestExpandErrors(t *testing.T) {
	anchor := date(2025, time.October, 1)
	blocks := []Block{{ID: "b1", DurationWeeks: 1}}

	_, err := Expand(anchor, blocks, nil, []Placement{
		{SessionID: "s1", BlockID: "missing", StartDay: "Monday", StartTime: "09:00", EndDay: "Monday", EndTime: "10:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown block")

	_, err = Expand(anchor, blocks, nil, []Placement{
		{SessionID: "s1", BlockID: "b1", StartDay: "Sunday", StartTime: "09:00", EndDay: "Monday", EndTime: "10:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid day")

	_, err = Expand(anchor, blocks, nil, []Placement{
		{SessionID: "s1", BlockID: "b1", StartDay: "Monday", StartTime: "9am", EndDay: "Monday", EndTime: "10:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time")

	_, err = Expand(anchor, blocks, nil, []Placement{
		{SessionID: "s1", BlockID: "b1", StartDay: "Monday", StartTime: "10:00", EndDay: "Monday", EndTime: "10:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ends at or before it starts")
}

func TestDurationWeeks(t *testing.T) {
	assert.Equal(t, 0, DurationWeeks(nil))

	sameDay := []Window{{
		Start: time.Date(2025, time.September, 29, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.September, 29, 17, 0, 0, 0, time.UTC),
	}}
	assert.Equal(t, 1, DurationWeeks(sameDay))

	spanning := []Window{
		{
			Start: time.Date(2025, time.September, 29, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2025, time.September, 29, 10, 0, 0, 0, time.UTC),
		},
		{
			Start: time.Date(2025, time.October, 8, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2025, time.October, 10, 16, 0, 0, 0, time.UTC),
		},
	}
	assert.Equal(t, 2, DurationWeeks(spanning))
}
