package model

import "sort"

// charsPerToken and safetyBufferTokens implement the cheap token-count
// heuristic: 4 chars/token plus a 500-token safety buffer.
const (
	charsPerToken     = 4
	safetyBufferTokens = 500
)

// EstimateTokens is the Gateway's cheap token-count heuristic.
func EstimateTokens(text string) int {
	return len(text)/charsPerToken + safetyBufferTokens
}

// SelectCandidates filters and orders the configured candidates for usage:
//  1. drop candidates whose MaxInputTokens is below the estimated count;
//  2. if quick, restrict to quick-eligible candidates, falling back to the
//     full (already token-filtered) list if that leaves none;
//  3. sort PRIMARY before FALLBACK, stable so "first by insertion wins"
//     within a role.
func SelectCandidates(all []Candidate, estimatedTokens int, quick bool) []Candidate {
	fit := make([]Candidate, 0, len(all))
	for _, c := range all {
		if c.MaxInputTokens > 0 && c.MaxInputTokens < estimatedTokens {
			continue
		}
		fit = append(fit, c)
	}

	ordered := fit
	if quick {
		var quickOnly []Candidate
		for _, c := range fit {
			if c.Quick {
				quickOnly = append(quickOnly, c)
			}
		}
		if len(quickOnly) > 0 {
			ordered = quickOnly
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return rolePriority(ordered[i].Role) < rolePriority(ordered[j].Role)
	})
	return ordered
}

func rolePriority(r Role) int {
	switch r {
	case RolePrimary:
		return 0
	case RoleFallback:
		return 1
	default:
		return 2
	}
}
