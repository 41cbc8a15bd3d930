package model

import (
	"encoding/json"
	"time"
)

type CohortStatus string

const (
	CohortStatusScheduled CohortStatus = "scheduled"
	CohortStatusActive    CohortStatus = "active"
	CohortStatusCompleted CohortStatus = "completed"
	CohortStatusDraft     CohortStatus = "draft"
)

type ParticipantStatus string

const (
	ParticipantStatusActive   ParticipantStatus = "active"
	ParticipantStatusInactive ParticipantStatus = "inactive"
)

type Program struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Region        string          `json:"region"`
	DurationWeeks int             `json:"durationWeeks"`
	Archived      bool            `json:"archived"`
	FormData      json.RawMessage `json:"formData,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Session is a program-scoped template; it carries no timestamps of its own
// and is instantiated once per cohort as a Schedule.
type Session struct {
	ID                  string    `json:"id"`
	ProgramID           string    `json:"programId"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	OrderIndex          int       `json:"orderIndex"`
	GroupSizeMin        int       `json:"groupSizeMin"`
	GroupSizeMax        int       `json:"groupSizeMax"`
	ParticipantTypes    []string  `json:"participantTypes"`
	FacilitatorSkills   []string  `json:"facilitatorSkills"`
	LocationTypes       []string  `json:"locationTypes"`
	RequiresFacilitator bool      `json:"requiresFacilitator"`
	CreatedAt           time.Time `json:"createdAt"`
}

type Cohort struct {
	ID        string          `json:"id"`
	ProgramID string          `json:"programId"`
	Name      string          `json:"name"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	Capacity  int             `json:"capacity"`
	Status    CohortStatus    `json:"status"`
	FormData  json.RawMessage `json:"formData,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Schedule is the concrete occurrence of a Session for one Cohort.
// FacilitatorID and LocationID stay nil when no pool resource resolved,
// which is a normal state, not an error.
type Schedule struct {
	ID                  string    `json:"id"`
	CohortID            string    `json:"cohortId"`
	SessionID           string    `json:"sessionId"`
	StartTime           time.Time `json:"startTime"`
	EndTime             time.Time `json:"endTime"`
	FacilitatorID       *string   `json:"facilitatorId,omitempty"`
	LocationID          *string   `json:"locationId,omitempty"`
	LocationDescription string    `json:"locationDescription,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}

type Enrollment struct {
	CohortID      string    `json:"cohortId"`
	ParticipantID string    `json:"participantId"`
	EnrolledAt    time.Time `json:"enrolledAt"`
}

type Participant struct {
	ID         string            `json:"id"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Email      string            `json:"email"`
	Department string            `json:"department"`
	JobTitle   string            `json:"jobTitle"`
	Location   string            `json:"location"`
	HireDate   *time.Time        `json:"hireDate,omitempty"`
	Status     ParticipantStatus `json:"status"`
}

type Facilitator struct {
	ID             string   `json:"id"`
	UserID         string   `json:"userId"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Qualifications []string `json:"qualifications"`
}

type Location struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Capacity  int      `json:"capacity"`
	Equipment []string `json:"equipment"`
	Address   *string  `json:"address,omitempty"`
}
