// Package match implements the posting/profile matching engine: hard-gate
// rules that can reject a posting outright, and the soft 0-100 match score
// used for ranking.
package match

import (
	"math"
	"strings"

	"github.com/applyforge/applyforge/pkg/models"
)

const (
	baseScore = 50

	remoteMatchBonus    = 15
	remoteMismatchMalus = -10
	remoteOpenBonus     = 5

	locationMatchBonus  = 10
	locationRemoteBonus = 5

	skillsWeight = 25

	seniorityMalus = -20
	keywordMalus   = -30
)

// Score computes the soft match score for a posting against a profile.
// Pure and deterministic: identical inputs always yield an identical
// breakdown. All substring checks are case-insensitive; the total is the
// clamped sum of a fixed base plus all term contributions.
func Score(posting *models.Posting, profile *models.Profile) models.MatchScoreBreakdown {
	var b models.MatchScoreBreakdown

	combined := strings.ToLower(posting.Title + " " + posting.Description + " " + posting.Company)
	title := strings.ToLower(posting.Title)
	prefs := profile.Preferences

	switch {
	case prefs.RemoteOnly && posting.IsRemote:
		b.Remote = remoteMatchBonus
	case prefs.RemoteOnly && !posting.IsRemote:
		b.Remote = remoteMismatchMalus
	case posting.IsRemote:
		b.Remote = remoteOpenBonus
	}

	// Location match takes priority over the remote fallback; only one of
	// the two branches applies.
	if matchesLocation(posting.Location, prefs.Locations) {
		b.Location = locationMatchBonus
	} else if posting.IsRemote {
		b.Location = locationRemoteBonus
	}

	if len(profile.Skills) > 0 {
		matched := 0
		for _, skill := range profile.Skills {
			if strings.Contains(combined, strings.ToLower(skill)) {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(profile.Skills))
		b.Skills = roundHalfUp(ratio * skillsWeight)
	}

	for _, term := range prefs.MaxSeniority {
		if term != "" && strings.Contains(title, strings.ToLower(term)) {
			b.Seniority = seniorityMalus
			break
		}
	}

	for _, kw := range prefs.ExcludedKeywords {
		if kw != "" && strings.Contains(combined, strings.ToLower(kw)) {
			b.Keywords = keywordMalus
			break
		}
	}

	b.Total = clamp(baseScore+b.Remote+b.Location+b.Skills+b.Seniority+b.Keywords, 0, 100)
	return b
}

// matchesLocation reports whether the posting location substring-matches any
// preferred location. Containment is checked in both directions, which is
// permissive for short strings ("NY" matches a lot) but mirrors how location
// labels vary across ATS vendors.
func matchesLocation(location string, preferred []string) bool {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return false
	}
	for _, p := range preferred {
		pref := strings.ToLower(strings.TrimSpace(p))
		if pref == "" {
			continue
		}
		if strings.Contains(loc, pref) || strings.Contains(pref, loc) {
			return true
		}
	}
	return false
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
