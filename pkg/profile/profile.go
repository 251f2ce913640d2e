package profile

import (
	"fmt"
	"regexp"
	"time"
)

// Profile describes a request pattern and the candidate synthetic responses
// that may be served when an intercepted request matches it. Profiles are
// immutable after validation and safe to share across goroutines.
type Profile struct {
	Request   ProfileRequest
	Responses []*Response

	// Priority is used as a tiebreaker when several profiles match the same
	// request. Lower numeric value wins, with 0 being the highest priority.
	Priority uint
}

// ProfileRequest is the matching side of a profile: which outgoing requests
// the profile applies to.
type ProfileRequest struct {
	Pattern URLPattern
	Method  string
	Headers map[string]string
	Body    []byte
}

// Response is one candidate synthetic response of a profile.
type Response struct {
	// Identifier must be unique across the responses of all configured
	// profiles. Usage tracking is keyed by it.
	Identifier string

	StatusCode int
	Headers    map[string]string
	Body       []byte

	// RedirectionURL, when set, turns the served response into a synthetic
	// redirect to that URL.
	RedirectionURL string

	Repeatability Repeatability
	Delay         time.Duration
}

// PatternKind distinguishes static from dynamic URL patterns.
type PatternKind int

const (
	// PatternStatic requires exact string equality with the absolute URL.
	PatternStatic PatternKind = iota
	// PatternDynamic requires the regular expression to find at least one
	// match anywhere in the absolute URL.
	PatternDynamic
)

// URLPattern matches the absolute URL of a prospect request.
type URLPattern struct {
	Kind  PatternKind
	Value string
}

// StaticPattern creates a pattern that matches one exact absolute URL.
func StaticPattern(url string) URLPattern {
	return URLPattern{Kind: PatternStatic, Value: url}
}

// DynamicPattern creates a pattern backed by a regular expression.
func DynamicPattern(expression string) URLPattern {
	return URLPattern{Kind: PatternDynamic, Value: expression}
}

// Matches reports whether the pattern matches the given absolute URL string.
// A dynamic pattern that fails to compile is treated as a non-match.
func (p URLPattern) Matches(urlString string) bool {
	switch p.Kind {
	case PatternStatic:
		return urlString == p.Value
	case PatternDynamic:
		expression, err := regexp.Compile(p.Value)
		if err != nil {
			return false
		}
		return expression.FindStringIndex(urlString) != nil
	default:
		return false
	}
}

// String returns a display form of the pattern.
func (p URLPattern) String() string {
	if p.Kind == PatternDynamic {
		return fmt.Sprintf("dynamic(%s)", p.Value)
	}
	return fmt.Sprintf("static(%s)", p.Value)
}

// Repeatability constrains how many times a response may be served before it
// is exhausted.
type Repeatability struct {
	limited bool
	maxUses uint
}

// Unlimited creates a repeatability with no serving limit.
func Unlimited() Repeatability {
	return Repeatability{}
}

// Limited creates a repeatability capped at maxUses total serves.
func Limited(maxUses uint) Repeatability {
	return Repeatability{limited: true, maxUses: maxUses}
}

// MaxUses returns the serving cap and whether one applies.
func (r Repeatability) MaxUses() (uint, bool) {
	return r.maxUses, r.limited
}

// String returns a display form of the repeatability.
func (r Repeatability) String() string {
	if r.limited {
		return fmt.Sprintf("limited(%d)", r.maxUses)
	}
	return "unlimited"
}

// Prospect is the matcher's view of an outgoing request: an immutable
// snapshot taken at interception time.
type Prospect struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}
