package profile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

var pathParameterPattern = regexp.MustCompile(`\{[^/}]+\}`)

// FromOpenAPI derives one profile per operation of an OpenAPI 3 document.
// Each operation becomes a dynamic-pattern profile whose single unlimited
// response carries the status code and JSON example of the first documented
// response, so a whole API surface can be mocked from its contract.
func FromOpenAPI(path string) ([]*Profile, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	// Deterministic profile order regardless of map iteration.
	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var profiles []*Profile
	for _, p := range paths {
		item := doc.Paths[p]
		for method, op := range item.Operations() {
			response, err := operationResponse(op)
			if err != nil {
				return nil, fmt.Errorf("operation %s %s: %w", method, p, err)
			}

			profiles = append(profiles, &Profile{
				Request: ProfileRequest{
					Pattern: DynamicPattern(pathExpression(p)),
					Method:  method,
				},
				Responses: []*Response{response},
			})
		}
	}

	if err := Validate(profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}

// pathExpression converts an OpenAPI path template into a regular expression
// matching the path portion of an absolute URL. Template parameters match a
// single path segment.
func pathExpression(template string) string {
	var sb strings.Builder
	remaining := template
	for {
		loc := pathParameterPattern.FindStringIndex(remaining)
		if loc == nil {
			sb.WriteString(regexp.QuoteMeta(remaining))
			break
		}
		sb.WriteString(regexp.QuoteMeta(remaining[:loc[0]]))
		sb.WriteString(`[^/?#]+`)
		remaining = remaining[loc[1]:]
	}
	return fmt.Sprintf(`^https?://[^/]+%s(\?.*)?$`, sb.String())
}

// operationResponse builds the synthetic response for one operation. The
// lowest documented status code wins; its JSON example becomes the body when
// one is present.
func operationResponse(op *openapi3.Operation) (*Response, error) {
	statusCode := 200
	var body []byte
	headers := map[string]string{"Content-Type": "application/json"}

	if op.Responses != nil {
		codes := make([]string, 0, len(op.Responses))
		for code := range op.Responses {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		for _, code := range codes {
			parsed := 0
			if _, err := fmt.Sscanf(code, "%d", &parsed); err != nil {
				continue
			}

			statusCode = parsed
			ref := op.Responses[code]
			if ref == nil || ref.Value == nil {
				break
			}

			if content := ref.Value.Content.Get("application/json"); content != nil && content.Example != nil {
				encoded, err := json.Marshal(content.Example)
				if err != nil {
					return nil, fmt.Errorf("failed to encode response example: %w", err)
				}
				body = encoded
			}
			break
		}
	}

	identifier := uuid.New().String()
	if op.OperationID != "" {
		identifier = op.OperationID
	}

	return &Response{
		Identifier:    identifier,
		StatusCode:    statusCode,
		Headers:       headers,
		Body:          body,
		Repeatability: Unlimited(),
	}, nil
}
