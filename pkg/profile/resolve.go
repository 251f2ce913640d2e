package profile

import (
	"fmt"
	"sort"
	"strings"
)

// OutcomeKind enumerates the possible results of resolving a prospect request
// against the full active profile set.
type OutcomeKind int

const (
	// NoAvailableProfiles means no profiles are configured at all.
	NoAvailableProfiles OutcomeKind = iota
	// NoMatchedProfiles means every configured profile reported a miss.
	NoMatchedProfiles
	// NoAvailableProfileResponse means a profile matched but all of its
	// responses are exhausted.
	NoAvailableProfileResponse
	// MatchedProfileAndResponse means a profile matched and a usable
	// response was chosen.
	MatchedProfileAndResponse
)

// Outcome is the exhaustive result of profile resolution. Every branch is
// distinguishable to callers and loggable verbatim.
type Outcome struct {
	Kind     OutcomeKind
	Profile  *Profile
	Response *Response

	// Results holds the individual per-profile match results, populated when
	// Kind is NoMatchedProfiles so the misses can be diagnosed.
	Results []MatchResult
}

// PrettyPrinted returns a human-readable form of the outcome for the given
// request URL.
func (o Outcome) PrettyPrinted(url string) string {
	switch o.Kind {
	case NoAvailableProfiles:
		return fmt.Sprintf("no available profiles for %q", url)
	case NoMatchedProfiles:
		var sb strings.Builder
		fmt.Fprintf(&sb, "no matched profiles for %q:", url)
		for _, result := range o.Results {
			if result.Reason != nil {
				fmt.Fprintf(&sb, "\n  miss for %s because %s",
					result.Profile.Request.Pattern, result.Reason.PrettyPrinted())
			}
		}
		return sb.String()
	case NoAvailableProfileResponse:
		return fmt.Sprintf("matched profile %s for %q but no response was available",
			o.Profile.Request.Pattern, url)
	case MatchedProfileAndResponse:
		return fmt.Sprintf("matched profile %s and response %s for %q",
			o.Profile.Request.Pattern, o.Response.Identifier, url)
	default:
		return "unknown outcome"
	}
}

// FirstUsableResponse returns the first response, in declaration order, that
// is unlimited or still allowed by the given usage predicate. Returns nil
// when every response is exhausted.
func (p *Profile) FirstUsableResponse(allowed func(*Response) bool) *Response {
	for _, response := range p.Responses {
		if _, limited := response.Repeatability.MaxUses(); !limited {
			return response
		}
		if allowed(response) {
			return response
		}
	}
	return nil
}

// Resolve maps a prospect request to a chosen profile response or one of the
// "no match" results. Profiles are evaluated sorted by ascending priority
// value; ties keep declaration order. The allowed predicate decides whether a
// limited response still has uses left.
func Resolve(profiles []*Profile, prospect Prospect, allowed func(*Response) bool) Outcome {
	if len(profiles) == 0 {
		return Outcome{Kind: NoAvailableProfiles}
	}

	ordered := make([]*Profile, len(profiles))
	copy(ordered, profiles)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	results := make([]MatchResult, 0, len(ordered))
	var matched *Profile
	for _, candidate := range ordered {
		result := candidate.Matches(prospect)
		results = append(results, result)
		if result.Hit && matched == nil {
			matched = candidate
		}
	}

	if matched == nil {
		return Outcome{Kind: NoMatchedProfiles, Results: results}
	}

	response := matched.FirstUsableResponse(allowed)
	if response == nil {
		return Outcome{Kind: NoAvailableProfileResponse, Profile: matched}
	}

	return Outcome{Kind: MatchedProfileAndResponse, Profile: matched, Response: response}
}

// DuplicateIdentifierError reports a response identifier shared by more than
// one configured profile response.
type DuplicateIdentifierError struct {
	Identifier string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate profile response identifier %q", e.Identifier)
}

// Validate checks that response identifiers are unique across all given
// profiles. A violated invariant is a configuration error surfaced before
// the profiles are put to use.
func Validate(profiles []*Profile) error {
	seen := make(map[string]struct{})
	for _, p := range profiles {
		for _, response := range p.Responses {
			if _, exists := seen[response.Identifier]; exists {
				return &DuplicateIdentifierError{Identifier: response.Identifier}
			}
			seen[response.Identifier] = struct{}{}
		}
	}
	return nil
}
