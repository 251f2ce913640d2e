package profile

import (
	"bytes"
	"fmt"
	"net/textproto"
	"strings"
)

// MissStage identifies which matching stage rejected the prospect. Stages are
// evaluated in order: URL, method, headers, body.
type MissStage int

const (
	MissURL MissStage = iota
	MissMethod
	MissHeaders
	MissBody
)

// String returns the stage name.
func (s MissStage) String() string {
	switch s {
	case MissURL:
		return "url"
	case MissMethod:
		return "method"
	case MissHeaders:
		return "headers"
	case MissBody:
		return "body"
	default:
		return "unknown"
	}
}

// MissReason explains why a profile did not match a prospect. It carries both
// sides of the failed comparison so diagnostics can be printed verbatim.
type MissReason struct {
	Stage    MissStage
	Prospect string
	Profile  string
}

// PrettyPrinted returns a human-readable form of the miss reason.
func (r MissReason) PrettyPrinted() string {
	return fmt.Sprintf("%s %q failed to match %q", r.Stage, r.Prospect, r.Profile)
}

// MatchResult is the outcome of evaluating a single profile against a
// prospect request.
type MatchResult struct {
	Profile *Profile
	Hit     bool
	Reason  *MissReason
}

// Matches evaluates the profile against a prospect request. Criteria are
// checked in strict order, short-circuiting on the first failure: URL
// pattern, method, declared headers, declared body.
func (p *Profile) Matches(prospect Prospect) MatchResult {
	if !p.Request.Pattern.Matches(prospect.URL) {
		return p.miss(MissURL, prospect.URL, p.Request.Pattern.String())
	}

	if !strings.EqualFold(p.Request.Method, prospect.Method) {
		return p.miss(MissMethod, prospect.Method, p.Request.Method)
	}

	if len(p.Request.Headers) > 0 {
		if !containsHeaders(prospect.Headers, p.Request.Headers) {
			return p.miss(MissHeaders,
				fmt.Sprintf("%v", prospect.Headers),
				fmt.Sprintf("%v", p.Request.Headers))
		}
	}

	if len(p.Request.Body) > 0 {
		if !bytes.Contains(prospect.Body, p.Request.Body) {
			return p.miss(MissBody,
				fmt.Sprintf("%d bytes", len(prospect.Body)),
				fmt.Sprintf("%d bytes", len(p.Request.Body)))
		}
	}

	return MatchResult{Profile: p, Hit: true}
}

func (p *Profile) miss(stage MissStage, prospectValue, profileValue string) MatchResult {
	return MatchResult{
		Profile: p,
		Reason: &MissReason{
			Stage:    stage,
			Prospect: prospectValue,
			Profile:  profileValue,
		},
	}
}

// containsHeaders reports whether the prospect header map is a superset of
// the declared header map. Keys are compared in canonical MIME form, values
// require exact equality. Extra prospect headers are ignored.
func containsHeaders(prospect, declared map[string]string) bool {
	if len(prospect) == 0 {
		return false
	}

	canonical := make(map[string]string, len(prospect))
	for key, value := range prospect {
		canonical[textproto.CanonicalMIMEHeaderKey(key)] = value
	}

	for key, value := range declared {
		found, ok := canonical[textproto.CanonicalMIMEHeaderKey(key)]
		if !ok || found != value {
			return false
		}
	}

	return true
}
