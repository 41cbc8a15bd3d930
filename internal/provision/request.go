package provision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"programhub/internal/schedule"
)

// CreateProgramRequest is the wizard submission payload. The server treats
// everything in it as input to re-derive, not ground truth: durations are
// recomputed by the expander and resource references are re-resolved by
// natural key (facilitator email, location name), never by client-sent ids.
type CreateProgramRequest struct {
	ProgramName            string                  `json:"programName"`
	Region                 string                  `json:"region"`
	Description            string                  `json:"description"`
	Sessions               []SessionInput          `json:"sessions"`
	Blocks                 []schedule.Block        `json:"blocks"`
	BlockDelays            map[string]int          `json:"blockDelays"`
	ScheduledSessions      []schedule.Placement    `json:"scheduledSessions"`
	CohortDetails          []CohortInput           `json:"cohortDetails"`
	FacilitatorAssignments []FacilitatorAssignment `json:"facilitatorAssignments"`
	LocationAssignments    []LocationAssignment    `json:"locationAssignments"`
	OriginalFormData       json.RawMessage         `json:"originalFormData"`
}

type SessionInput struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	OrderIndex          int      `json:"orderIndex"`
	GroupSizeMin        int      `json:"groupSizeMin"`
	GroupSizeMax        int      `json:"groupSizeMax"`
	ParticipantTypes    []string `json:"participantTypes"`
	FacilitatorSkills   []string `json:"facilitatorSkills"`
	LocationTypes       []string `json:"locationTypes"`
	RequiresFacilitator bool     `json:"requiresFacilitator"`
}

type CohortInput struct {
	Name               string              `json:"name"`
	StartDate          string              `json:"startDate"`
	EndDate            string              `json:"endDate"`
	Capacity           int                 `json:"capacity"`
	ParticipantFilters *ParticipantFilters `json:"participantFilters,omitempty"`
	FormData           json.RawMessage     `json:"formData,omitempty"`
}

// ParticipantFilters carries the cohort-level eligibility overrides. Region,
// when set, replaces the program region for this cohort.
type ParticipantFilters struct {
	Region       string `json:"region"`
	HireDateFrom string `json:"hireDateFrom"`
	HireDateTo   string `json:"hireDateTo"`
}

// FacilitatorAssignment is a client preview choice, keyed by the stable
// natural key. The server looks the email up read-only at persist time.
type FacilitatorAssignment struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
}

type LocationAssignment struct {
	SessionID    string `json:"sessionId"`
	LocationName string `json:"locationName"`
}

// AddCohortRequest provisions one additional cohort for an existing program,
// re-running expansion, matching and enrollment scoped to just that cohort.
type AddCohortRequest struct {
	Cohort            CohortInput          `json:"cohort"`
	Blocks            []schedule.Block     `json:"blocks"`
	BlockDelays       map[string]int       `json:"blockDelays"`
	ScheduledSessions []schedule.Placement `json:"scheduledSessions"`
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func (r *CreateProgramRequest) validate() *ValidationError {
	if strings.TrimSpace(r.ProgramName) == "" {
		return &ValidationError{Field: "programName", Message: "program name is required"}
	}
	if len(r.Sessions) == 0 {
		return &ValidationError{Field: "sessions", Message: "at least one session is required"}
	}
	for i, session := range r.Sessions {
		if strings.TrimSpace(session.Title) == "" {
			return &ValidationError{Field: fmt.Sprintf("sessions[%d].title", i), Message: "session title is required"}
		}
	}
	for i, cohort := range r.CohortDetails {
		if err := cohort.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (c *CohortInput) validate(index int) *ValidationError {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: fmt.Sprintf("cohortDetails[%d].name", index), Message: "cohort name is required"}
	}
	if _, err := parseDate(c.StartDate); err != nil {
		return &ValidationError{
			Field:   fmt.Sprintf("cohortDetails[%d].startDate", index),
			Message: fmt.Sprintf("cohort %q has an invalid start date: %v", c.Name, err),
		}
	}
	if c.EndDate != "" {
		if _, err := parseDate(c.EndDate); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("cohortDetails[%d].endDate", index),
				Message: fmt.Sprintf("cohort %q has an invalid end date: %v", c.Name, err),
			}
		}
	}
	if c.ParticipantFilters != nil {
		if c.ParticipantFilters.HireDateFrom != "" {
			if _, err := parseDate(c.ParticipantFilters.HireDateFrom); err != nil {
				return &ValidationError{
					Field:   fmt.Sprintf("cohortDetails[%d].participantFilters.hireDateFrom", index),
					Message: fmt.Sprintf("cohort %q has an invalid hire date filter: %v", c.Name, err),
				}
			}
		}
		if c.ParticipantFilters.HireDateTo != "" {
			if _, err := parseDate(c.ParticipantFilters.HireDateTo); err != nil {
				return &ValidationError{
					Field:   fmt.Sprintf("cohortDetails[%d].participantFilters.hireDateTo", index),
					Message: fmt.Sprintf("cohort %q has an invalid hire date filter: %v", c.Name, err),
				}
			}
		}
	}
	return nil
}

// hireWindow parses the cohort's optional hire-date bounds. Validation has
// already run, so parse failures here surface as nil bounds only for absent
// values.
func (c *CohortInput) hireWindow() (*time.Time, *time.Time) {
	if c.ParticipantFilters == nil {
		return nil, nil
	}
	var from, to *time.Time
	if c.ParticipantFilters.HireDateFrom != "" {
		if t, err := parseDate(c.ParticipantFilters.HireDateFrom); err == nil {
			from = &t
		}
	}
	if c.ParticipantFilters.HireDateTo != "" {
		if t, err := parseDate(c.ParticipantFilters.HireDateTo); err == nil {
			to = &t
		}
	}
	return from, to
}

func (c *CohortInput) region(programRegion string) string {
	if c.ParticipantFilters != nil && strings.TrimSpace(c.ParticipantFilters.Region) != "" {
		return c.ParticipantFilters.Region
	}
	return programRegion
}

// cohortExpansion holds the authoritative server-side expansion for one
// cohort.
type cohortExpansion struct {
	input   CohortInput
	start   time.Time
	end     time.Time
	weeks   int
	windows map[string]schedule.Window
	ordered []schedule.Window
}

// expandCohort re-derives the cohort's absolute session windows, end date
// and duration from the relative placements. A cohort with no placements
// falls back to its explicit end date, then to defaultWeeks past start.
func expandCohort(cohort CohortInput, blocks []schedule.Block, delays map[string]int, placements []schedule.Placement, defaultWeeks int) (*cohortExpansion, *ValidationError) {
	anchor, err := parseDate(cohort.StartDate)
	if err != nil {
		return nil, &ValidationError{
			Field:   "cohortDetails.startDate",
			Message: fmt.Sprintf("cohort %q has an invalid start date: %v", cohort.Name, err),
		}
	}

	windows, err := schedule.Expand(anchor, blocks, delays, placements)
	if err != nil {
		return nil, &ValidationError{
			Field:   "scheduledSessions",
			Message: fmt.Sprintf("cohort %q: %v", cohort.Name, err),
		}
	}

	expansion := &cohortExpansion{
		input:   cohort,
		start:   anchor,
		ordered: windows,
		windows: make(map[string]schedule.Window, len(windows)),
	}
	for _, w := range windows {
		expansion.windows[w.SessionID] = w
	}

	if len(windows) > 0 {
		expansion.weeks = schedule.DurationWeeks(windows)
		first := windows[0].Start
		expansion.end = windows[0].End
		for _, w := range windows[1:] {
			if w.Start.Before(first) {
				first = w.Start
			}
			if w.End.After(expansion.end) {
				expansion.end = w.End
			}
		}
		// A mid-week anchor's week-0 placements can land before the anchor
		// itself; the cohort starts at whichever comes first so the end date
		// always follows the start date.
		if first.Before(expansion.start) {
			expansion.start = first
		}
		return expansion, nil
	}

	if cohort.EndDate != "" {
		end, err := parseDate(cohort.EndDate)
		if err != nil {
			return nil, &ValidationError{
				Field:   "cohortDetails.endDate",
				Message: fmt.Sprintf("cohort %q has an invalid end date: %v", cohort.Name, err),
			}
		}
		expansion.end = end
	} else {
		expansion.end = anchor.AddDate(0, 0, 7*defaultWeeks)
	}
	span := expansion.end.Sub(expansion.start)
	expansion.weeks = int(span / (7 * 24 * time.Hour))
	if span%(7*24*time.Hour) != 0 {
		expansion.weeks++
	}
	if expansion.weeks < 1 {
		expansion.weeks = 1
	}
	return expansion, nil
}
