// Package eligibility implements the three-level participant inclusion test
// used both for wizard previews and for authoritative enrollment. The filter
// is a pure function over a population snapshot; preview and enrollment must
// agree, so nothing here touches storage or clocks.
package eligibility

import (
	"time"

	"programhub/internal/model"
)

// RegionGlobal disables the region level entirely.
const RegionGlobal = "Global"

// Filter holds the three optional levels. A level whose trigger is absent
// (empty region, no date bounds, empty type union) is skipped, not treated
// as exclude-everyone.
type Filter struct {
	Region           string     `json:"region"`
	HireDateFrom     *time.Time `json:"hireDateFrom,omitempty"`
	HireDateTo       *time.Time `json:"hireDateTo,omitempty"`
	ParticipantTypes []string   `json:"participantTypes"`
}

// FromSessions unions every session's participantTypes into the third
// filter level.
func FromSessions(region string, from, to *time.Time, sessions []model.Session) Filter {
	seen := make(map[string]struct{})
	var types []string
	for _, session := range sessions {
		for _, t := range session.ParticipantTypes {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			types = append(types, t)
		}
	}
	return Filter{Region: region, HireDateFrom: from, HireDateTo: to, ParticipantTypes: types}
}

// Apply returns the order-preserving subset of participants passing every
// applicable level.
func Apply(participants []model.Participant, filter Filter) []model.Participant {
	matched := make([]model.Participant, 0, len(participants))
	for _, p := range participants {
		if Matches(p, filter) {
			matched = append(matched, p)
		}
	}
	return matched
}

func Matches(p model.Participant, filter Filter) bool {
	return matchesRegion(p, filter) && matchesHireWindow(p, filter) && matchesType(p, filter)
}

func matchesRegion(p model.Participant, filter Filter) bool {
	if filter.Region == "" || filter.Region == RegionGlobal {
		return true
	}
	return p.Location == filter.Region
}

// matchesHireWindow excludes participants with no hire date whenever either
// bound is active. An absent filter admits everyone; an active one with a
// missing hire date is a deliberate default-deny, not a pass-through.
func matchesHireWindow(p model.Participant, filter Filter) bool {
	if filter.HireDateFrom == nil && filter.HireDateTo == nil {
		return true
	}
	if p.HireDate == nil {
		return false
	}
	if filter.HireDateFrom != nil && p.HireDate.Before(*filter.HireDateFrom) {
		return false
	}
	if filter.HireDateTo != nil && p.HireDate.After(*filter.HireDateTo) {
		return false
	}
	return true
}

func matchesType(p model.Participant, filter Filter) bool {
	if len(filter.ParticipantTypes) == 0 {
		return true
	}
	for _, t := range filter.ParticipantTypes {
		if p.Department == t || p.JobTitle == t {
			return true
		}
	}
	return false
}
