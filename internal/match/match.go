// Package match assigns facilitators and locations to scheduled sessions.
// Both matchers are deterministic first-fit over pools sorted by a stable
// key, so a wizard preview and the authoritative provisioning run always
// agree. Round-robin state is threaded explicitly through calls rather than
// held in package state.
package match

import (
	"sort"
	"strings"

	"programhub/internal/model"
)

type UnmatchedFacilitator struct {
	CohortID       string   `json:"cohortId"`
	SessionID      string   `json:"sessionId"`
	RequiredSkills []string `json:"requiredSkills"`
	Reason         string   `json:"reason"`
}

type UnmatchedLocation struct {
	CohortID         string   `json:"cohortId"`
	SessionID        string   `json:"sessionId"`
	RequiredTypes    []string `json:"requiredTypes"`
	RequiredCapacity int      `json:"requiredCapacity"`
	Reason           string   `json:"reason"`
}

// SortFacilitators copies and orders the pool by email so iteration order,
// and with it round-robin assignment, is stable across runs.
func SortFacilitators(pool []model.Facilitator) []model.Facilitator {
	sorted := make([]model.Facilitator, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Email < sorted[j].Email })
	return sorted
}

func SortLocations(pool []model.Location) []model.Location {
	sorted := make([]model.Location, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

// Facilitator picks a facilitator for one scheduled session. With no
// required skills the pool is cycled round-robin: next is the shared cycle
// position across the whole cohort-session iteration and the advanced value
// is returned for the following call. With required skills the first
// facilitator whose qualifications cover every skill wins; there is never a
// partial match.
func Facilitator(cohortID string, session model.Session, pool []model.Facilitator, next int) (*model.Facilitator, int, *UnmatchedFacilitator) {
	if len(session.FacilitatorSkills) == 0 {
		if len(pool) == 0 {
			return nil, next, &UnmatchedFacilitator{
				CohortID:  cohortID,
				SessionID: session.ID,
				Reason:    "no facilitators available",
			}
		}
		chosen := pool[next%len(pool)]
		return &chosen, next + 1, nil
	}

	for _, candidate := range pool {
		if hasAllSkills(candidate.Qualifications, session.FacilitatorSkills) {
			chosen := candidate
			return &chosen, next, nil
		}
	}
	return nil, next, &UnmatchedFacilitator{
		CohortID:       cohortID,
		SessionID:      session.ID,
		RequiredSkills: session.FacilitatorSkills,
		Reason:         "no facilitator holds all required skills",
	}
}

// Location picks a room for one scheduled session. Virtual and off-site
// sessions never consult the physical pool; they get a synthetic description
// and no foreign key.
func Location(cohortID string, session model.Session, pool []model.Location) (*model.Location, string, *UnmatchedLocation) {
	if placeholder, ok := virtualPlaceholder(session.LocationTypes); ok {
		return nil, placeholder, nil
	}

	preferred := make(map[string]struct{}, len(session.LocationTypes))
	for _, t := range session.LocationTypes {
		preferred[t] = struct{}{}
	}

	for _, candidate := range pool {
		if candidate.Capacity < session.GroupSizeMax {
			continue
		}
		if len(preferred) > 0 {
			if _, ok := preferred[candidate.Type]; !ok {
				continue
			}
		}
		chosen := candidate
		return &chosen, "", nil
	}

	reason := "no location with sufficient capacity"
	if len(preferred) > 0 {
		reason = "no location of the required type with sufficient capacity"
	}
	return nil, "", &UnmatchedLocation{
		CohortID:         cohortID,
		SessionID:        session.ID,
		RequiredTypes:    session.LocationTypes,
		RequiredCapacity: session.GroupSizeMax,
		Reason:           reason,
	}
}

func virtualPlaceholder(locationTypes []string) (string, bool) {
	for _, t := range locationTypes {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "virtual":
			return "Virtual session (no room required)", true
		case "off-site":
			return "Off-site session (no room required)", true
		}
	}
	return "", false
}

func hasAllSkills(qualifications, required []string) bool {
	held := make(map[string]struct{}, len(qualifications))
	for _, q := range qualifications {
		held[q] = struct{}{}
	}
	for _, skill := range required {
		if _, ok := held[skill]; !ok {
			return false
		}
	}
	return true
}
