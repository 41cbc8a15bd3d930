package provision

import (
	"testing"
	"time"

	"programhub/internal/model"
	"programhub/internal/schedule"
)

func validRequest() CreateProgramRequest {
	return CreateProgramRequest{
		ProgramName: "Onboarding 2026",
		Region:      "EMEA",
		Sessions: []SessionInput{
			{ID: "local-1", Title: "Welcome Day"},
		},
		CohortDetails: []CohortInput{
			{Name: "January intake", StartDate: "2026-01-05"},
		},
	}
}

func TestValidateAcceptsValidRequest(t *testing.T) {
	req := validRequest()
	if err := req.validate(); err != nil {
		t.Fatalf("validate returned %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateProgramRequest)
		field  string
	}{
		{
			name:   "missing program name",
			mutate: func(r *CreateProgramRequest) { r.ProgramName = "  " },
			field:  "programName",
		},
		{
			name:   "no sessions",
			mutate: func(r *CreateProgramRequest) { r.Sessions = nil },
			field:  "sessions",
		},
		{
			name:   "untitled session",
			mutate: func(r *CreateProgramRequest) { r.Sessions[0].Title = "" },
			field:  "sessions[0].title",
		},
		{
			name:   "unnamed cohort",
			mutate: func(r *CreateProgramRequest) { r.CohortDetails[0].Name = "" },
			field:  "cohortDetails[0].name",
		},
		{
			name:   "bad cohort start date",
			mutate: func(r *CreateProgramRequest) { r.CohortDetails[0].StartDate = "05/01/2026" },
			field:  "cohortDetails[0].startDate",
		},
		{
			name: "bad hire date filter",
			mutate: func(r *CreateProgramRequest) {
				r.CohortDetails[0].ParticipantFilters = &ParticipantFilters{HireDateFrom: "not-a-date"}
			},
			field: "cohortDetails[0].participantFilters.hireDateFrom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Field != tt.field {
				t.Fatalf("field = %q, want %q", err.Field, tt.field)
			}
		})
	}
}

func TestParseDateAcceptsBothLayouts(t *testing.T) {
	want := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	got, err := parseDate("2026-01-05")
	if err != nil {
		t.Fatalf("parseDate: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("parseDate = %v, want %v", got, want)
	}
	got, err = parseDate("2026-01-05T00:00:00Z")
	if err != nil {
		t.Fatalf("parseDate rfc3339: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("parseDate rfc3339 = %v, want %v", got, want)
	}
}

func TestCohortRegionOverride(t *testing.T) {
	cohort := CohortInput{Name: "c"}
	if got := cohort.region("EMEA"); got != "EMEA" {
		t.Fatalf("region = %q, want program region", got)
	}
	cohort.ParticipantFilters = &ParticipantFilters{Region: "APAC"}
	if got := cohort.region("EMEA"); got != "APAC" {
		t.Fatalf("region = %q, want APAC override", got)
	}
}

func TestExpandCohortFromPlacements(t *testing.T) {
	cohort := CohortInput{Name: "January intake", StartDate: "2025-10-01"}
	blocks := []schedule.Block{{ID: "b1", DurationWeeks: 2}}
	placements := []schedule.Placement{
		{SessionID: "s1", BlockID: "b1", StartWeek: 0, StartDay: "Monday", StartTime: "09:00", EndWeek: 0, EndDay: "Monday", EndTime: "17:00"},
		{SessionID: "s2", BlockID: "b1", StartWeek: 1, StartDay: "Friday", StartTime: "09:00", EndWeek: 1, EndDay: "Friday", EndTime: "17:00"},
	}

	expansion, verr := expandCohort(cohort, blocks, nil, placements, 12)
	if verr != nil {
		t.Fatalf("expandCohort: %v", verr)
	}
	if expansion.weeks != 2 {
		t.Fatalf("weeks = %d, want 2", expansion.weeks)
	}
	wantEnd := time.Date(2025, time.October, 10, 17, 0, 0, 0, time.UTC)
	if !expansion.end.Equal(wantEnd) {
		t.Fatalf("end = %v, want %v", expansion.end, wantEnd)
	}
	if len(expansion.windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(expansion.windows))
	}
}

func TestExpandCohortMidWeekAnchorKeepsEndAfterStart(t *testing.T) {
	// A Wednesday anchor whose only placement sits on week-0 Monday expands
	// to a window two days before the anchor; the cohort start moves back
	// with it so the end date still follows the start date.
	cohort := CohortInput{Name: "c", StartDate: "2025-10-01"}
	blocks := []schedule.Block{{ID: "b1", DurationWeeks: 2}}
	placements := []schedule.Placement{
		{SessionID: "s1", BlockID: "b1", StartWeek: 0, StartDay: "Monday", StartTime: "09:00", EndWeek: 0, EndDay: "Monday", EndTime: "10:00"},
	}

	expansion, verr := expandCohort(cohort, blocks, nil, placements, 12)
	if verr != nil {
		t.Fatalf("expandCohort: %v", verr)
	}
	wantStart := time.Date(2025, time.September, 29, 9, 0, 0, 0, time.UTC)
	if !expansion.start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", expansion.start, wantStart)
	}
	if !expansion.end.After(expansion.start) {
		t.Fatalf("end %v is not after start %v", expansion.end, expansion.start)
	}
}

func TestExpandCohortFallsBackToExplicitEndDate(t *testing.T) {
	cohort := CohortInput{Name: "c", StartDate: "2026-01-05", EndDate: "2026-02-09"}
	expansion, verr := expandCohort(cohort, nil, nil, nil, 12)
	if verr != nil {
		t.Fatalf("expandCohort: %v", verr)
	}
	if expansion.weeks != 5 {
		t.Fatalf("weeks = %d, want 5", expansion.weeks)
	}
}

func TestExpandCohortFallsBackToDefaultWeeks(t *testing.T) {
	cohort := CohortInput{Name: "c", StartDate: "2026-01-05"}
	expansion, verr := expandCohort(cohort, nil, nil, nil, 8)
	if verr != nil {
		t.Fatalf("expandCohort: %v", verr)
	}
	if expansion.weeks != 8 {
		t.Fatalf("weeks = %d, want 8", expansion.weeks)
	}
	wantEnd := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	if !expansion.end.Equal(wantEnd) {
		t.Fatalf("end = %v, want %v", expansion.end, wantEnd)
	}
}

func TestExpandCohortReportsExpansionErrors(t *testing.T) {
	cohort := CohortInput{Name: "January intake", StartDate: "2026-01-05"}
	placements := []schedule.Placement{
		{SessionID: "s1", BlockID: "missing", StartDay: "Monday", StartTime: "09:00", EndDay: "Monday", EndTime: "10:00"},
	}
	_, verr := expandCohort(cohort, nil, nil, placements, 12)
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if verr.Field != "scheduledSessions" {
		t.Fatalf("field = %q, want scheduledSessions", verr.Field)
	}
}

func TestResolveSessionRefs(t *testing.T) {
	stored := []model.Session{
		{ID: "11111111-1111-1111-1111-111111111111", Title: "Welcome Day"},
		{ID: "22222222-2222-2222-2222-222222222222", Title: "Safety Training"},
	}
	inputs := []SessionInput{
		{ID: "local-1", Title: "Welcome Day"},
		{ID: "22222222-2222-2222-2222-222222222222", Title: "Safety Training"},
		{ID: "local-3", Title: "Brand New Session"},
	}

	refs := resolveSessionRefs(stored, inputs)

	if got := refs["local-1"]; got == nil || got.ID != stored[0].ID {
		t.Fatalf("local-1 resolved to %+v, want %s", got, stored[0].ID)
	}
	if got := refs[stored[1].ID]; got == nil || got.Title != "Safety Training" {
		t.Fatalf("stored id did not resolve to itself")
	}
	if _, ok := refs["local-3"]; ok {
		t.Fatal("unknown session should not resolve")
	}
}
