// Package schedule expands relative block/week/day placements into absolute
// session windows anchored to a cohort start date. Everything here is pure:
// the same input always yields the same timestamps.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

type Block struct {
	ID            string `json:"id"`
	DurationWeeks int    `json:"durationWeeks"`
}

// Placement positions one session inside a block. Week offsets are
// zero-based within the block; days are working days only.
type Placement struct {
	SessionID string `json:"sessionId"`
	BlockID   string `json:"blockId"`
	StartWeek int    `json:"startWeek"`
	StartDay  string `json:"startDay"`
	StartTime string `json:"startTime"`
	EndWeek   int    `json:"endWeek"`
	EndDay    string `json:"endDay"`
	EndTime   string `json:"endTime"`
}

// Window is the absolute expansion of one Placement.
type Window struct {
	SessionID string    `json:"sessionId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

var dayIndex = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"mon":       0,
	"tue":       1,
	"wed":       2,
	"thu":       3,
	"fri":       4,
}

// ReferenceMonday returns the Monday that serves as day 0 of week 0 for the
// given anchor. An anchor on a working day keeps its own week, so the
// reference is that week's Monday; a weekend anchor rolls forward to the
// next Monday, never back.
func ReferenceMonday(anchor time.Time) time.Time {
	switch anchor.Weekday() {
	case time.Saturday:
		return anchor.AddDate(0, 0, 2)
	case time.Sunday:
		return anchor.AddDate(0, 0, 1)
	default:
		return anchor.AddDate(0, 0, -(int(anchor.Weekday()) - 1))
	}
}

// BlockOffsets walks blocks in declared order and accumulates each block's
// absolute start-week offset. The delay for a block applies before it and is
// ignored for the first block.
func BlockOffsets(blocks []Block, delays map[string]int) map[string]int {
	offsets := make(map[string]int, len(blocks))
	running := 0
	for i, block := range blocks {
		if i > 0 {
			running += delays[block.ID]
		}
		offsets[block.ID] = running
		running += block.DurationWeeks
	}
	return offsets
}

func Expand(anchor time.Time, blocks []Block, delays map[string]int, placements []Placement) ([]Window, error) {
	reference := ReferenceMonday(anchor)
	offsets := BlockOffsets(blocks, delays)

	windows := make([]Window, 0, len(placements))
	for _, p := range placements {
		blockOffset := 0
		if p.BlockID != "" {
			offset, ok := offsets[p.BlockID]
			if !ok {
				return nil, fmt.Errorf("session %s references unknown block %s", p.SessionID, p.BlockID)
			}
			blockOffset = offset
		}

		start, err := placementInstant(reference, blockOffset, p.StartWeek, p.StartDay, p.StartTime)
		if err != nil {
			return nil, fmt.Errorf("session %s start: %w", p.SessionID, err)
		}
		end, err := placementInstant(reference, blockOffset, p.EndWeek, p.EndDay, p.EndTime)
		if err != nil {
			return nil, fmt.Errorf("session %s end: %w", p.SessionID, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("session %s ends at or before it starts", p.SessionID)
		}
		windows = append(windows, Window{SessionID: p.SessionID, Start: start, End: end})
	}
	return windows, nil
}

func placementInstant(reference time.Time, blockOffset, week int, day, clock string) (time.Time, error) {
	index, ok := dayIndex[strings.ToLower(strings.TrimSpace(day))]
	if !ok {
		return time.Time{}, fmt.Errorf("invalid day %q", day)
	}
	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	date := reference.AddDate(0, 0, 7*(blockOffset+week)+index)
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, reference.Location()), nil
}

func parseClock(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q", value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// DurationWeeks reports the whole-week span covered by the expanded windows,
// always at least one week. Zero means no windows at all; callers fall back
// to explicit cohort dates or the configured default.
func DurationWeeks(windows []Window) int {
	if len(windows) == 0 {
		return 0
	}
	first := windows[0].Start
	last := windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(first) {
			first = w.Start
		}
		if w.End.After(last) {
			last = w.End
		}
	}
	span := last.Sub(first)
	weeks := int(span / (7 * 24 * time.Hour))
	if span%(7*24*time.Hour) != 0 {
		weeks++
	}
	if weeks < 1 {
		weeks = 1
	}
	return weeks
}
