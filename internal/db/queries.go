package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"programhub/internal/model"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so every query can run
// standalone or inside Store.WithTx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Programs

func (q *Queries) CreateProgram(ctx context.Context, p model.Program) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO programs (id, name, description, region, duration_weeks, archived, form_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Name, p.Description, p.Region, p.DurationWeeks, p.Archived, jsonArg(p.FormData), p.CreatedAt, p.UpdatedAt)
	return err
}

func (q *Queries) UpdateProgram(ctx context.Context, p model.Program) error {
	_, err := q.db.Exec(ctx, `
		UPDATE programs
		SET name = $2, description = $3, region = $4, duration_weeks = $5, form_data = $6, updated_at = $7
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Region, p.DurationWeeks, jsonArg(p.FormData), p.UpdatedAt)
	return err
}

func (q *Queries) ArchiveProgram(ctx context.Context, programID string, archivedAt time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE programs SET archived = true, updated_at = $2 WHERE id = $1 AND archived = false
	`, programID, archivedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) GetProgram(ctx context.Context, programID string) (model.Program, error) {
	var p model.Program
	row := q.db.QueryRow(ctx, `
		SELECT id, name, description, region, duration_weeks, archived, form_data, created_at, updated_at
		FROM programs
		WHERE id = $1
	`, programID)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Region, &p.DurationWeeks, &p.Archived, &p.FormData, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListPrograms(ctx context.Context) ([]model.Program, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, region, duration_weeks, archived, form_data, created_at, updated_at
		FROM programs
		WHERE archived = false
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []model.Program
	for rows.Next() {
		var p model.Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Region, &p.DurationWeeks, &p.Archived, &p.FormData, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// Sessions

func (q *Queries) CreateSession(ctx context.Context, s model.Session) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO sessions (id, program_id, title, description, order_index, group_size_min, group_size_max,
			participant_types, facilitator_skills, location_types, requires_facilitator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.ProgramID, s.Title, s.Description, s.OrderIndex, s.GroupSizeMin, s.GroupSizeMax,
		s.ParticipantTypes, s.FacilitatorSkills, s.LocationTypes, s.RequiresFacilitator, s.CreatedAt)
	return err
}

func (q *Queries) ListSessionsByProgram(ctx context.Context, programID string) ([]model.Session, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, program_id, title, description, order_index, group_size_min, group_size_max,
			participant_types, facilitator_skills, location_types, requires_facilitator, created_at
		FROM sessions
		WHERE program_id = $1
		ORDER BY order_index, created_at
	`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.ProgramID, &s.Title, &s.Description, &s.OrderIndex, &s.GroupSizeMin, &s.GroupSizeMax,
			&s.ParticipantTypes, &s.FacilitatorSkills, &s.LocationTypes, &s.RequiresFacilitator, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Cohorts

func (q *Queries) CreateCohort(ctx context.Context, c model.Cohort) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO cohorts (id, program_id, name, start_date, end_date, capacity, status, form_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.ProgramID, c.Name, c.StartDate, c.EndDate, c.Capacity, string(c.Status), jsonArg(c.FormData), c.CreatedAt)
	return err
}

func (q *Queries) ListCohortsByProgram(ctx context.Context, programID string) ([]model.Cohort, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, program_id, name, start_date, end_date, capacity, status, form_data, created_at
		FROM cohorts
		WHERE program_id = $1
		ORDER BY start_date, created_at
	`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cohorts []model.Cohort
	for rows.Next() {
		var c model.Cohort
		if err := rows.Scan(&c.ID, &c.ProgramID, &c.Name, &c.StartDate, &c.EndDate, &c.Capacity, &c.Status, &c.FormData, &c.CreatedAt); err != nil {
			return nil, err
		}
		cohorts = append(cohorts, c)
	}
	return cohorts, rows.Err()
}

// ActivateDueCohorts moves scheduled cohorts whose start date has passed to
// active and returns how many rows changed.
func (q *Queries) ActivateDueCohorts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE cohorts SET status = 'active' WHERE status = 'scheduled' AND start_date <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CompleteDueCohorts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE cohorts SET status = 'completed' WHERE status IN ('scheduled', 'active') AND end_date <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Schedules

func (q *Queries) CreateSchedule(ctx context.Context, s model.Schedule) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO schedules (id, cohort_id, session_id, start_time, end_time, facilitator_id, location_id, location_description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.CohortID, s.SessionID, s.StartTime, s.EndTime, s.FacilitatorID, s.LocationID, s.LocationDescription, s.CreatedAt)
	return err
}

func (q *Queries) ListSchedulesByCohort(ctx context.Context, cohortID string) ([]model.Schedule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, cohort_id, session_id, start_time, end_time, facilitator_id, location_id, location_description, created_at
		FROM schedules
		WHERE cohort_id = $1
		ORDER BY start_time
	`, cohortID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []model.Schedule
	for rows.Next() {
		var s model.Schedule
		if err := rows.Scan(&s.ID, &s.CohortID, &s.SessionID, &s.StartTime, &s.EndTime, &s.FacilitatorID, &s.LocationID, &s.LocationDescription, &s.CreatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// Enrollments

// CreateEnrollment is idempotent: re-enrolling an already enrolled
// participant is skipped by the primary key, never an error.
func (q *Queries) CreateEnrollment(ctx context.Context, e model.Enrollment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO cohort_participants (cohort_id, participant_id, enrolled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cohort_id, participant_id) DO NOTHING
	`, e.CohortID, e.ParticipantID, e.EnrolledAt)
	return err
}

func (q *Queries) ListEnrollmentsByCohort(ctx context.Context, cohortID string) ([]model.Enrollment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT cohort_id, participant_id, enrolled_at
		FROM cohort_participants
		WHERE cohort_id = $1
		ORDER BY enrolled_at
	`, cohortID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.CohortID, &e.ParticipantID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// Resource pools (read-only; provisioning never creates pool rows)

func (q *Queries) ListFacilitators(ctx context.Context) ([]model.Facilitator, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, name, email, qualifications
		FROM facilitators
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facilitators []model.Facilitator
	for rows.Next() {
		var f model.Facilitator
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Email, &f.Qualifications); err != nil {
			return nil, err
		}
		facilitators = append(facilitators, f)
	}
	return facilitators, rows.Err()
}

func (q *Queries) GetFacilitatorByEmail(ctx context.Context, email string) (model.Facilitator, error) {
	var f model.Facilitator
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, name, email, qualifications
		FROM facilitators
		WHERE email = $1
	`, email)
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Email, &f.Qualifications)
	return f, err
}

func (q *Queries) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, type, capacity, equipment, address
		FROM locations
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &l.Capacity, &l.Equipment, &l.Address); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (q *Queries) GetLocationByName(ctx context.Context, name string) (model.Location, error) {
	var l model.Location
	row := q.db.QueryRow(ctx, `
		SELECT id, name, type, capacity, equipment, address
		FROM locations
		WHERE name = $1
	`, name)
	err := row.Scan(&l.ID, &l.Name, &l.Type, &l.Capacity, &l.Equipment, &l.Address)
	return l, err
}

func (q *Queries) ListActiveParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, first_name, last_name, email, department, job_title, location, hire_date, status
		FROM participants
		WHERE status = 'active'
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Department, &p.JobTitle, &p.Location, &p.HireDate, &p.Status); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func jsonArg(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
