// Package matcher implements two-tier identity matching: deterministic email
// equality first, probabilistic name similarity second. It is pure: no
// storage, no clock, no network, so the same inputs always produce the same
// result.
package matcher

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

const (
	// DefaultThreshold accepts moderately confident name matches.
	DefaultThreshold = 0.70

	// StrictThreshold is used for cross-provider account linking, where a
	// wrong link contaminates every downstream metric for two people.
	StrictThreshold = 0.80

	firstTokenWeight = 0.85
	lastTokenMinimum = 0.85

	// Last-token agreement floors the overall score. Names derived from an
	// email local-part carry less signal than an explicit display name, so
	// they floor lower.
	derivedNameFloor = 0.75
	displayNameFloor = 0.80
)

// Method records which strategy produced a match.
type Method string

const (
	MethodEmailExact Method = "email_exact"
	MethodFuzzyName  Method = "fuzzy_name"
)

// Candidate is the person being linked. Either field may be empty, not both.
type Candidate struct {
	Email string
	Name  string
}

// Options tunes a match run.
type Options struct {
	// Threshold is the minimum acceptable confidence; DefaultThreshold when
	// zero or negative.
	Threshold float64
}

func (o Options) threshold() float64 {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

// Result is a successful match against one roster member.
type Result struct {
	ID         string
	Name       string
	Confidence float64
	Method     Method
}

// Match resolves a candidate against a roster.
//
// Exact email equality (case-insensitive) wins immediately with confidence
// 1.0. Otherwise the candidate's display name (or a name derived from the
// email local-part) is scored against every member's display name, and the
// best member at or above the threshold is returned. Members without display
// names are not considered. Ties keep the first-seen member.
func Match(c Candidate, members []roster.Member, opts Options) (Result, bool) {
	email := strings.ToLower(strings.TrimSpace(c.Email))

	if email != "" {
		for _, m := range members {
			if m.Email != "" && strings.ToLower(strings.TrimSpace(m.Email)) == email {
				return Result{
					ID:         m.ID,
					Name:       m.Name,
					Confidence: 1.0,
					Method:     MethodEmailExact,
				}, true
			}
		}
	}

	name, floor := comparisonName(c, email)
	if name == "" {
		return Result{}, false
	}

	threshold := opts.threshold()
	var best Result
	found := false

	for _, m := range members {
		target := strings.ToLower(strings.TrimSpace(m.Name))
		if target == "" {
			continue
		}

		score := scoreName(name, target, floor)
		if score < threshold {
			continue
		}
		if !found || score > best.Confidence {
			best = Result{
				ID:         m.ID,
				Name:       m.Name,
				Confidence: score,
				Method:     MethodFuzzyName,
			}
			found = true
		}
	}

	return best, found
}

// MatchLogin resolves a candidate against login handles rather than display
// names. GitHub org member listings frequently omit profile names, leaving
// only logins like "jdoe42" to work with. A normalized subsequence pass
// (fuzzysearch rank) nominates candidates; similarity against the collapsed
// candidate name confirms them.
func MatchLogin(c Candidate, members []roster.Member, opts Options) (Result, bool) {
	keys := candidateKeys(c)
	if len(keys) == 0 {
		return Result{}, false
	}

	logins := make([]string, 0, len(members))
	byLogin := make(map[string]roster.Member, len(members))
	for _, m := range members {
		if m.ID == "" {
			continue
		}
		logins = append(logins, m.ID)
		byLogin[m.ID] = m
	}

	threshold := opts.threshold()
	var best Result
	found := false

	for _, key := range keys {
		for _, rank := range fuzzy.RankFindNormalizedFold(key, logins) {
			score := similarity(key, strings.ToLower(rank.Target))
			if score < threshold {
				continue
			}
			if !found || score > best.Confidence {
				m := byLogin[rank.Target]
				best = Result{
					ID:         m.ID,
					Name:       m.Name,
					Confidence: score,
					Method:     MethodFuzzyName,
				}
				found = true
			}
		}
	}

	return best, found
}

// comparisonName picks the string the fuzzy tier compares and the last-token
// floor that applies to it.
func comparisonName(c Candidate, email string) (string, float64) {
	if name := strings.ToLower(strings.TrimSpace(c.Name)); name != "" {
		return name, displayNameFloor
	}
	if email == "" {
		return "", 0
	}
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	replacer := strings.NewReplacer(".", " ", "_", " ", "-", " ", "+", " ")
	return strings.TrimSpace(replacer.Replace(local)), derivedNameFloor
}

// scoreName combines whole-string similarity with token-component evidence.
func scoreName(candidate, target string, floor float64) float64 {
	score := similarity(candidate, target)

	cTokens := tokens(candidate)
	tTokens := tokens(target)
	if len(cTokens) == 0 || len(tTokens) == 0 {
		return score
	}

	if first := similarity(cTokens[0], tTokens[0]); first*firstTokenWeight > score {
		score = first * firstTokenWeight
	}

	if len(cTokens) >= 2 && len(tTokens) >= 2 {
		last := similarity(cTokens[len(cTokens)-1], tTokens[len(tTokens)-1])
		if last > lastTokenMinimum && score < floor {
			score = floor
		}
	}

	return score
}

// similarity is a normalized edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	return 1.0 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	})
}

func candidateKeys(c Candidate) []string {
	keys := make([]string, 0, 2)

	if name := strings.ToLower(strings.TrimSpace(c.Name)); name != "" {
		collapsed := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || r == '.' {
				return -1
			}
			return r
		}, name)
		if collapsed != "" {
			keys = append(keys, collapsed)
		}
	}

	if email := strings.ToLower(strings.TrimSpace(c.Email)); email != "" {
		local := email
		if at := strings.IndexByte(email, '@'); at >= 0 {
			local = email[:at]
		}
		// Logins rarely carry separators, so the local part is collapsed
		// the same way the display name is.
		local = strings.Map(func(r rune) rune {
			switch r {
			case '.', '_', '-', '+':
				return -1
			}
			return r
		}, local)
		if local != "" {
			keys = append(keys, local)
		}
	}

	return keys
}
