// Package provision orchestrates program creation: it validates the wizard
// payload, re-derives the calendar through the temporal expander, matches
// facilitators and locations, and persists the whole program graph plus
// eligibility-driven enrollment inside one transaction.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"programhub/internal/db"
	"programhub/internal/eligibility"
	"programhub/internal/match"
	"programhub/internal/model"
)

// State tracks the provisioning request lifecycle, mostly for failure logs.
type State string

const (
	StateValidating State = "validating"
	StateExpanding  State = "expanding"
	StatePersisting State = "persisting"
	StateEnrolling  State = "enrolling"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

type Service struct {
	store        *db.Store
	logger       *zap.Logger
	defaultWeeks int
	now          func() time.Time
}

func NewService(store *db.Store, logger *zap.Logger, defaultWeeks int) *Service {
	if defaultWeeks <= 0 {
		defaultWeeks = 12
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		logger:       logger,
		defaultWeeks: defaultWeeks,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type CohortResult struct {
	Cohort      model.Cohort       `json:"cohort"`
	Schedules   []model.Schedule   `json:"schedules"`
	Enrollments []model.Enrollment `json:"enrollments"`
}

// Result is the fully hydrated program returned to the caller, including
// unmatched records for operator follow-up. Partial resolution (a schedule
// with no facilitator) is a normal terminal state, distinct from transaction
// failure which persists nothing.
type Result struct {
	Program               model.Program                `json:"program"`
	Sessions              []model.Session              `json:"sessions"`
	Cohorts               []CohortResult               `json:"cohorts"`
	UnmatchedFacilitators []match.UnmatchedFacilitator `json:"unmatchedFacilitators"`
	UnmatchedLocations    []match.UnmatchedLocation    `json:"unmatchedLocations"`
	Warnings              []string                     `json:"warnings"`
}

func (s *Service) Provision(ctx context.Context, req CreateProgramRequest) (*Result, error) {
	state := StateValidating
	if verr := req.validate(); verr != nil {
		return nil, verr
	}

	state = StateExpanding
	expansions := make([]*cohortExpansion, 0, len(req.CohortDetails))
	programWeeks := 0
	for _, cohort := range req.CohortDetails {
		expansion, verr := expandCohort(cohort, req.Blocks, req.BlockDelays, req.ScheduledSessions, s.defaultWeeks)
		if verr != nil {
			return nil, verr
		}
		expansions = append(expansions, expansion)
		if expansion.weeks > programWeeks {
			programWeeks = expansion.weeks
		}
	}
	if programWeeks == 0 {
		programWeeks = s.defaultWeeks
	}

	now := s.now()
	program := model.Program{
		ID:            uuid.NewString(),
		Name:          req.ProgramName,
		Description:   req.Description,
		Region:        req.Region,
		DurationWeeks: programWeeks,
		FormData:      req.OriginalFormData,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sessions := make([]model.Session, 0, len(req.Sessions))
	sessionsByRef := make(map[string]*model.Session, len(req.Sessions))
	for _, input := range req.Sessions {
		session := model.Session{
			ID:                  uuid.NewString(),
			ProgramID:           program.ID,
			Title:               input.Title,
			Description:         input.Description,
			OrderIndex:          input.OrderIndex,
			GroupSizeMin:        input.GroupSizeMin,
			GroupSizeMax:        input.GroupSizeMax,
			ParticipantTypes:    input.ParticipantTypes,
			FacilitatorSkills:   input.FacilitatorSkills,
			LocationTypes:       input.LocationTypes,
			RequiresFacilitator: input.RequiresFacilitator,
			CreatedAt:           now,
		}
		sessions = append(sessions, session)
		sessionsByRef[input.ID] = &sessions[len(sessions)-1]
	}

	result := &Result{
		Program:               program,
		Sessions:              sessions,
		Warnings:              []string{},
		UnmatchedFacilitators: []match.UnmatchedFacilitator{},
		UnmatchedLocations:    []match.UnmatchedLocation{},
	}

	state = StatePersisting
	err := s.store.WithTx(ctx, func(q *db.Queries) error {
		facilitators, err := q.ListFacilitators(ctx)
		if err != nil {
			return err
		}
		locations, err := q.ListLocations(ctx)
		if err != nil {
			return err
		}
		population, err := q.ListActiveParticipants(ctx)
		if err != nil {
			return err
		}
		facilitatorPool := match.SortFacilitators(facilitators)
		locationPool := match.SortLocations(locations)

		if err := q.CreateProgram(ctx, program); err != nil {
			return err
		}
		for _, session := range sessions {
			if err := q.CreateSession(ctx, session); err != nil {
				return err
			}
		}

		// Round-robin position is shared across the whole cohort-session
		// iteration so skill-free sessions spread evenly over the pool.
		roundRobin := 0
		for _, expansion := range expansions {
			cohort := model.Cohort{
				ID:        uuid.NewString(),
				ProgramID: program.ID,
				Name:      expansion.input.Name,
				StartDate: expansion.start,
				EndDate:   expansion.end,
				Capacity:  expansion.input.Capacity,
				Status:    model.CohortStatusScheduled,
				FormData:  expansion.input.FormData,
				CreatedAt: now,
			}
			if err := q.CreateCohort(ctx, cohort); err != nil {
				return err
			}

			schedules, err := s.createSchedules(ctx, q, cohort, req, sessionsByRef, expansion, facilitatorPool, locationPool, &roundRobin, result)
			if err != nil {
				return err
			}

			state = StateEnrolling
			enrollments, err := s.enroll(ctx, q, cohort, expansion.input, program.Region, sessions, population)
			if err != nil {
				return err
			}
			state = StatePersisting

			result.Cohorts = append(result.Cohorts, CohortResult{
				Cohort:      cohort,
				Schedules:   schedules,
				Enrollments: enrollments,
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("provisioning failed",
			zap.String("program", req.ProgramName),
			zap.String("state", string(state)),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// createSchedules inserts one schedule row per scheduled placement for the
// cohort. Facilitators are resolved by email and locations by name when the
// wizard pre-assigned them; otherwise the matchers run server-side against
// the pool snapshot. Lookups never create on miss; a miss becomes an
// unmatched record and a nullable reference.
func (s *Service) createSchedules(ctx context.Context, q *db.Queries, cohort model.Cohort, req CreateProgramRequest, sessionsByRef map[string]*model.Session, expansion *cohortExpansion, facilitatorPool []model.Facilitator, locationPool []model.Location, roundRobin *int, result *Result) ([]model.Schedule, error) {
	facilitatorEmails := make(map[string]string, len(req.FacilitatorAssignments))
	for _, a := range req.FacilitatorAssignments {
		facilitatorEmails[a.SessionID] = a.Email
	}
	locationNames := make(map[string]string, len(req.LocationAssignments))
	for _, a := range req.LocationAssignments {
		locationNames[a.SessionID] = a.LocationName
	}

	schedules := make([]model.Schedule, 0, len(expansion.ordered))
	for _, placement := range req.ScheduledSessions {
		session, ok := sessionsByRef[placement.SessionID]
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("cohort %q: schedule skipped, unknown session %q", cohort.Name, placement.SessionID))
			continue
		}
		window, ok := expansion.windows[placement.SessionID]
		if !ok {
			continue
		}

		row := model.Schedule{
			ID:        uuid.NewString(),
			CohortID:  cohort.ID,
			SessionID: session.ID,
			StartTime: window.Start,
			EndTime:   window.End,
			CreatedAt: s.now(),
		}

		if session.RequiresFacilitator {
			if email := facilitatorEmails[placement.SessionID]; email != "" {
				facilitator, err := q.GetFacilitatorByEmail(ctx, email)
				switch {
				case err == nil:
					id := facilitator.ID
					row.FacilitatorID = &id
				case errors.Is(err, pgx.ErrNoRows):
					result.UnmatchedFacilitators = append(result.UnmatchedFacilitators, match.UnmatchedFacilitator{
						CohortID:       cohort.ID,
						SessionID:      session.ID,
						RequiredSkills: session.FacilitatorSkills,
						Reason:         fmt.Sprintf("assigned facilitator %s not found", email),
					})
				default:
					return nil, err
				}
			} else {
				chosen, next, unmatched := match.Facilitator(cohort.ID, *session, facilitatorPool, *roundRobin)
				*roundRobin = next
				if unmatched != nil {
					result.UnmatchedFacilitators = append(result.UnmatchedFacilitators, *unmatched)
				} else {
					id := chosen.ID
					row.FacilitatorID = &id
				}
			}
		}

		if name := locationNames[placement.SessionID]; name != "" {
			location, err := q.GetLocationByName(ctx, name)
			switch {
			case err == nil:
				id := location.ID
				row.LocationID = &id
			case errors.Is(err, pgx.ErrNoRows):
				result.UnmatchedLocations = append(result.UnmatchedLocations, match.UnmatchedLocation{
					CohortID:         cohort.ID,
					SessionID:        session.ID,
					RequiredTypes:    session.LocationTypes,
					RequiredCapacity: session.GroupSizeMax,
					Reason:           fmt.Sprintf("assigned location %q not found", name),
				})
			default:
				return nil, err
			}
		} else {
			chosen, placeholder, unmatched := match.Location(cohort.ID, *session, locationPool)
			switch {
			case unmatched != nil:
				result.UnmatchedLocations = append(result.UnmatchedLocations, *unmatched)
			case chosen != nil:
				id := chosen.ID
				row.LocationID = &id
			default:
				row.LocationDescription = placeholder
			}
		}

		if err := q.CreateSchedule(ctx, row); err != nil {
			return nil, err
		}
		schedules = append(schedules, row)
	}
	return schedules, nil
}

// enroll runs the eligibility filter over the active population snapshot and
// bulk-inserts enrollment rows. Already enrolled participants are skipped by
// the (cohort, participant) primary key, so re-running enrollment is a
// no-op, never an error.
func (s *Service) enroll(ctx context.Context, q *db.Queries, cohort model.Cohort, input CohortInput, programRegion string, sessions []model.Session, population []model.Participant) ([]model.Enrollment, error) {
	from, to := input.hireWindow()
	filter := eligibility.FromSessions(input.region(programRegion), from, to, sessions)
	eligible := eligibility.Apply(population, filter)

	enrolledAt := s.now()
	enrollments := make([]model.Enrollment, 0, len(eligible))
	for _, participant := range eligible {
		enrollment := model.Enrollment{
			CohortID:      cohort.ID,
			ParticipantID: participant.ID,
			EnrolledAt:    enrolledAt,
		}
		if err := q.CreateEnrollment(ctx, enrollment); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, nil
}

// Update edits an existing program. Cohort creation is additive only:
// cohorts are matched by name and existing ones are never re-provisioned or
// given duplicate schedules.
func (s *Service) Update(ctx context.Context, programID string, req CreateProgramRequest) (*Result, error) {
	if verr := req.validate(); verr != nil {
		return nil, verr
	}

	program, err := s.store.Queries.GetProgram(ctx, programID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "program", ID: programID}
	}
	if err != nil {
		return nil, err
	}

	storedSessions, err := s.store.Queries.ListSessionsByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	existingCohorts, err := s.store.Queries.ListCohortsByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	existingNames := make(map[string]struct{}, len(existingCohorts))
	for _, cohort := range existingCohorts {
		existingNames[cohort.Name] = struct{}{}
	}

	var newCohorts []CohortInput
	for _, cohort := range req.CohortDetails {
		if _, ok := existingNames[cohort.Name]; ok {
			continue
		}
		newCohorts = append(newCohorts, cohort)
	}

	expansions := make([]*cohortExpansion, 0, len(newCohorts))
	programWeeks := program.DurationWeeks
	for _, cohort := range newCohorts {
		expansion, verr := expandCohort(cohort, req.Blocks, req.BlockDelays, req.ScheduledSessions, s.defaultWeeks)
		if verr != nil {
			return nil, verr
		}
		expansions = append(expansions, expansion)
		if expansion.weeks > programWeeks {
			programWeeks = expansion.weeks
		}
	}

	now := s.now()
	program.Name = req.ProgramName
	program.Description = req.Description
	program.Region = req.Region
	program.DurationWeeks = programWeeks
	if len(req.OriginalFormData) > 0 {
		program.FormData = req.OriginalFormData
	}
	program.UpdatedAt = now

	sessionsByRef := resolveSessionRefs(storedSessions, req.Sessions)

	result := &Result{
		Program:               program,
		Sessions:              storedSessions,
		Warnings:              []string{},
		UnmatchedFacilitators: []match.UnmatchedFacilitator{},
		UnmatchedLocations:    []match.UnmatchedLocation{},
	}

	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		if err := q.UpdateProgram(ctx, program); err != nil {
			return err
		}
		if len(expansions) == 0 {
			return nil
		}

		facilitators, err := q.ListFacilitators(ctx)
		if err != nil {
			return err
		}
		locations, err := q.ListLocations(ctx)
		if err != nil {
			return err
		}
		population, err := q.ListActiveParticipants(ctx)
		if err != nil {
			return err
		}
		facilitatorPool := match.SortFacilitators(facilitators)
		locationPool := match.SortLocations(locations)

		roundRobin := 0
		for _, expansion := range expansions {
			cohort := model.Cohort{
				ID:        uuid.NewString(),
				ProgramID: program.ID,
				Name:      expansion.input.Name,
				StartDate: expansion.start,
				EndDate:   expansion.end,
				Capacity:  expansion.input.Capacity,
				Status:    model.CohortStatusScheduled,
				FormData:  expansion.input.FormData,
				CreatedAt: now,
			}
			if err := q.CreateCohort(ctx, cohort); err != nil {
				return err
			}
			schedules, err := s.createSchedules(ctx, q, cohort, req, sessionsByRef, expansion, facilitatorPool, locationPool, &roundRobin, result)
			if err != nil {
				return err
			}
			enrollments, err := s.enroll(ctx, q, cohort, expansion.input, program.Region, storedSessions, population)
			if err != nil {
				return err
			}
			result.Cohorts = append(result.Cohorts, CohortResult{Cohort: cohort, Schedules: schedules, Enrollments: enrollments})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("program update failed",
			zap.String("programId", programID),
			zap.String("program", req.ProgramName),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// AddCohort provisions one extra cohort for an existing program by re-running
// the expander, matchers and eligibility filter scoped to just that cohort.
func (s *Service) AddCohort(ctx context.Context, programID string, req AddCohortRequest) (*Result, error) {
	if verr := req.Cohort.validate(0); verr != nil {
		return nil, verr
	}

	program, err := s.store.Queries.GetProgram(ctx, programID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "program", ID: programID}
	}
	if err != nil {
		return nil, err
	}
	storedSessions, err := s.store.Queries.ListSessionsByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	existingCohorts, err := s.store.Queries.ListCohortsByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	for _, cohort := range existingCohorts {
		if cohort.Name == req.Cohort.Name {
			return nil, &ValidationError{Field: "cohort.name", Message: fmt.Sprintf("cohort %q already exists", req.Cohort.Name)}
		}
	}

	expansion, verr := expandCohort(req.Cohort, req.Blocks, req.BlockDelays, req.ScheduledSessions, s.defaultWeeks)
	if verr != nil {
		return nil, verr
	}

	createReq := CreateProgramRequest{
		ScheduledSessions: req.ScheduledSessions,
	}
	sessionsByRef := resolveSessionRefs(storedSessions, nil)

	now := s.now()
	result := &Result{
		Program:               program,
		Sessions:              storedSessions,
		Warnings:              []string{},
		UnmatchedFacilitators: []match.UnmatchedFacilitator{},
		UnmatchedLocations:    []match.UnmatchedLocation{},
	}

	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		facilitators, err := q.ListFacilitators(ctx)
		if err != nil {
			return err
		}
		locations, err := q.ListLocations(ctx)
		if err != nil {
			return err
		}
		population, err := q.ListActiveParticipants(ctx)
		if err != nil {
			return err
		}

		cohort := model.Cohort{
			ID:        uuid.NewString(),
			ProgramID: program.ID,
			Name:      expansion.input.Name,
			StartDate: expansion.start,
			EndDate:   expansion.end,
			Capacity:  expansion.input.Capacity,
			Status:    model.CohortStatusScheduled,
			FormData:  expansion.input.FormData,
			CreatedAt: now,
		}
		if err := q.CreateCohort(ctx, cohort); err != nil {
			return err
		}
		roundRobin := 0
		schedules, err := s.createSchedules(ctx, q, cohort, createReq, sessionsByRef, expansion,
			match.SortFacilitators(facilitators), match.SortLocations(locations), &roundRobin, result)
		if err != nil {
			return err
		}
		enrollments, err := s.enroll(ctx, q, cohort, req.Cohort, program.Region, storedSessions, population)
		if err != nil {
			return err
		}
		result.Cohorts = append(result.Cohorts, CohortResult{Cohort: cohort, Schedules: schedules, Enrollments: enrollments})
		return nil
	})
	if err != nil {
		s.logger.Error("cohort provisioning failed",
			zap.String("programId", programID),
			zap.String("cohort", req.Cohort.Name),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Hydrate loads the full program graph for read responses.
func (s *Service) Hydrate(ctx context.Context, programID string) (*Result, error) {
	program, err := s.store.Queries.GetProgram(ctx, programID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "program", ID: programID}
	}
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.Queries.ListSessionsByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	cohorts, err := s.store.Queries.ListCohortsByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Program:               program,
		Sessions:              sessions,
		Warnings:              []string{},
		UnmatchedFacilitators: []match.UnmatchedFacilitator{},
		UnmatchedLocations:    []match.UnmatchedLocation{},
	}
	for _, cohort := range cohorts {
		schedules, err := s.store.Queries.ListSchedulesByCohort(ctx, cohort.ID)
		if err != nil {
			return nil, err
		}
		enrollments, err := s.store.Queries.ListEnrollmentsByCohort(ctx, cohort.ID)
		if err != nil {
			return nil, err
		}
		result.Cohorts = append(result.Cohorts, CohortResult{Cohort: cohort, Schedules: schedules, Enrollments: enrollments})
	}
	return result, nil
}

func (s *Service) ListPrograms(ctx context.Context) ([]model.Program, error) {
	return s.store.Queries.ListPrograms(ctx)
}

// Archive soft-deletes a program.
func (s *Service) Archive(ctx context.Context, programID string) error {
	archived, err := s.store.Queries.ArchiveProgram(ctx, programID, s.now())
	if err != nil {
		return err
	}
	if !archived {
		return &NotFoundError{Resource: "program", ID: programID}
	}
	return nil
}

// resolveSessionRefs maps placement session references to stored sessions.
// References resolve by stored id first; wizard-local ids resolve through
// the submitted session's title, the stable key a round-tripped form keeps.
func resolveSessionRefs(stored []model.Session, inputs []SessionInput) map[string]*model.Session {
	refs := make(map[string]*model.Session, len(stored))
	byTitle := make(map[string]*model.Session, len(stored))
	for i := range stored {
		refs[stored[i].ID] = &stored[i]
		byTitle[stored[i].Title] = &stored[i]
	}
	for _, input := range inputs {
		if _, ok := refs[input.ID]; ok {
			continue
		}
		if session, ok := byTitle[input.Title]; ok {
			refs[input.ID] = session
		}
	}
	return refs
}
