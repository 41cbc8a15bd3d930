package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"programhub/internal/model"
)

func facilitatorPool() []model.Facilitator {
	return SortFacilitators([]model.Facilitator{
		{ID: "f2", Name: "Noa Levin", Email: "noa@example.com", Qualifications: []string{"leadership", "safety"}},
		{ID: "f1", Name: "Ada Kaya", Email: "ada@example.com", Qualifications: []string{"onboarding"}},
		{ID: "f3", Name: "Sam Reyes", Email: "sam@example.com", Qualifications: []string{"safety"}},
	})
}

func locationPool() []model.Location {
	return SortLocations([]model.Location{
		{ID: "l2", Name: "Workshop B", Type: "workshop", Capacity: 30},
		{ID: "l1", Name: "Room A", Type: "classroom", Capacity: 12},
		{ID: "l3", Name: "Auditorium", Type: "auditorium", Capacity: 200},
	})
}

func TestSortFacilitatorsByEmail(t *testing.T) {
	pool := facilitatorPool()
	assert.Equal(t, "ada@example.com", pool[0].Email)
	assert.Equal(t, "noa@example.com", pool[1].Email)
	assert.Equal(t, "sam@example.com", pool[2].Email)
}

func TestFacilitatorRoundRobin(t *testing.T) {
	pool := facilitatorPool()
	session := model.Session{ID: "s1", RequiresFacilitator: true}

	next := 0
	var chosen []string
	for i := 0; i < 4; i++ {
		picked, advanced, unmatched := Facilitator("cohort-1", session, pool, next)
		require.Nil(t, unmatched)
		require.NotNil(t, picked)
		chosen = append(chosen, picked.Email)
		next = advanced
	}
	// Cycle wraps after the third pick.
	assert.Equal(t, []string{"ada@example.com", "noa@example.com", "sam@example.com", "ada@example.com"}, chosen)
	assert.Equal(t, 4, next)
}

func TestFacilitatorSkillMatch(t *testing.T) {
	pool := facilitatorPool()
	session := model.Session{ID: "s1", FacilitatorSkills: []string{"safety"}}

	picked, next, unmatched := Facilitator("cohort-1", session, pool, 7)
	require.Nil(t, unmatched)
	assert.Equal(t, "noa@example.com", picked.Email) // first in email order holding the skill
	assert.Equal(t, 7, next)                         // skill matches never advance the cycle
}

func TestFacilitatorRequiresEverySkill(t *testing.T) {
	pool := facilitatorPool()
	session := model.Session{ID: "s1", FacilitatorSkills: []string{"safety", "forklift"}}

	picked, _, unmatched := Facilitator("cohort-1", session, pool, 0)
	assert.Nil(t, picked)
	require.NotNil(t, unmatched)
	assert.Equal(t, "cohort-1", unmatched.CohortID)
	assert.Equal(t, "s1", unmatched.SessionID)
	assert.Equal(t, []string{"safety", "forklift"}, unmatched.RequiredSkills)
}

func TestFacilitatorEmptyPool(t *testing.T) {
	picked, next, unmatched := Facilitator("cohort-1", model.Session{ID: "s1"}, nil, 3)
	assert.Nil(t, picked)
	assert.Equal(t, 3, next)
	require.NotNil(t, unmatched)
	assert.Equal(t, "no facilitators available", unmatched.Reason)
}

func TestLocationFirstFit(t *testing.T) {
	pool := locationPool()
	session := model.Session{ID: "s1", GroupSizeMax: 20, LocationTypes: []string{"workshop", "auditorium"}}

	picked, placeholder, unmatched := Location("cohort-1", session, pool)
	require.Nil(t, unmatched)
	assert.Empty(t, placeholder)
	assert.Equal(t, "Auditorium", picked.Name) // first in name order that fits; Workshop B also fits
}

func TestLocationTypeFilter(t *testing.T) {
	pool := locationPool()
	session := model.Session{ID: "s1", GroupSizeMax: 20, LocationTypes: []string{"workshop"}}

	picked, _, unmatched := Location("cohort-1", session, pool)
	require.Nil(t, unmatched)
	assert.Equal(t, "Workshop B", picked.Name) // Auditorium sorts first but is the wrong type
}

func TestLocationCapacityOnly(t *testing.T) {
	pool := locationPool()
	session := model.Session{ID: "s1", GroupSizeMax: 50}

	picked, _, unmatched := Location("cohort-1", session, pool)
	require.Nil(t, unmatched)
	assert.Equal(t, "Auditorium", picked.Name)
}

func TestLocationUnmatched(t *testing.T) {
	pool := locationPool()
	session := model.Session{ID: "s1", GroupSizeMax: 500, LocationTypes: []string{"classroom"}}

	picked, _, unmatched := Location("cohort-1", session, pool)
	assert.Nil(t, picked)
	require.NotNil(t, unmatched)
	assert.Equal(t, 500, unmatched.RequiredCapacity)
	assert.Equal(t, []string{"classroom"}, unmatched.RequiredTypes)
}

func TestLocationVirtualPlaceholder(t *testing.T) {
	session := model.Session{ID: "s1", GroupSizeMax: 1000, LocationTypes: []string{"Virtual"}}

	picked, placeholder, unmatched := Location("cohort-1", session, nil)
	assert.Nil(t, picked)
	assert.Nil(t, unmatched)
	assert.Equal(t, "Virtual session (no room required)", placeholder)
}

func TestLocationOffSitePlaceholder(t *testing.T) {
	session := model.Session{ID: "s1", LocationTypes: []string{"off-site"}}

	picked, placeholder, unmatched := Location("cohort-1", session, locationPool())
	assert.Nil(t, picked)
	assert.Nil(t, unmatched)
	assert.Equal(t, "Off-site session (no room required)", placeholder)
}
