package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk schema for a set of profiles. YAML is the
// canonical format; JSON files parse through the same schema.
type profileFile struct {
	Profiles []profileEntry `yaml:"profiles" json:"profiles"`
}

type profileEntry struct {
	Priority  uint          `yaml:"priority" json:"priority"`
	Request   requestEntry  `yaml:"request" json:"request"`
	Responses []responseRaw `yaml:"responses" json:"responses"`
}

type requestEntry struct {
	// URL declares a static pattern; URLPattern declares a dynamic one. The
	// two are mutually exclusive.
	URL        string            `yaml:"url" json:"url"`
	URLPattern string            `yaml:"urlPattern" json:"urlPattern"`
	Method     string            `yaml:"method" json:"method"`
	Headers    map[string]string `yaml:"headers" json:"headers"`
	Body       string            `yaml:"body" json:"body"`
}

type responseRaw struct {
	Identifier string            `yaml:"identifier" json:"identifier"`
	StatusCode int               `yaml:"statusCode" json:"statusCode"`
	Headers    map[string]string `yaml:"headers" json:"headers"`

	// Exactly one of Body, BodyFile and BodyTemplate may be set. BodyFile is
	// resolved relative to the profile file. BodyTemplate is rendered once at
	// load time with a seeded faker.
	Body         string `yaml:"body" json:"body"`
	BodyFile     string `yaml:"bodyFile" json:"bodyFile"`
	BodyTemplate string `yaml:"bodyTemplate" json:"bodyTemplate"`

	RedirectURL string `yaml:"redirectUrl" json:"redirectUrl"`

	// Repeatability is the total number of allowed serves; 0 means unlimited.
	Repeatability uint `yaml:"repeatability" json:"repeatability"`

	// Delay is a time.ParseDuration string, e.g. "150ms".
	Delay string `yaml:"delay" json:"delay"`
}

// LoadFile reads profiles from a YAML or JSON file. Template bodies are
// rendered with a faker seeded by seed, so a fixed seed yields reproducible
// payloads. The returned set is validated for identifier uniqueness.
func LoadFile(path string, seed int64) ([]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var file profileFile
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode profiles file: %w", err)
	}

	faker := gofakeit.New(seed)
	baseDir := filepath.Dir(path)

	profiles := make([]*Profile, 0, len(file.Profiles))
	for i, entry := range file.Profiles {
		p, err := entry.profile(faker, baseDir)
		if err != nil {
			return nil, fmt.Errorf("invalid profile at index %d: %w", i, err)
		}
		profiles = append(profiles, p)
	}

	if err := Validate(profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}

func (e profileEntry) profile(faker *gofakeit.Faker, baseDir string) (*Profile, error) {
	var pattern URLPattern
	switch {
	case e.Request.URL != "" && e.Request.URLPattern != "":
		return nil, fmt.Errorf("request declares both url and urlPattern")
	case e.Request.URL != "":
		pattern = StaticPattern(e.Request.URL)
	case e.Request.URLPattern != "":
		pattern = DynamicPattern(e.Request.URLPattern)
	default:
		return nil, fmt.Errorf("request declares neither url nor urlPattern")
	}

	method := e.Request.Method
	if method == "" {
		method = "GET"
	}

	if len(e.Responses) == 0 {
		return nil, fmt.Errorf("profile declares no responses")
	}

	responses := make([]*Response, 0, len(e.Responses))
	for i, raw := range e.Responses {
		response, err := raw.response(faker, baseDir)
		if err != nil {
			return nil, fmt.Errorf("invalid response at index %d: %w", i, err)
		}
		responses = append(responses, response)
	}

	var body []byte
	if e.Request.Body != "" {
		body = []byte(e.Request.Body)
	}

	return &Profile{
		Request: ProfileRequest{
			Pattern: pattern,
			Method:  method,
			Headers: e.Request.Headers,
			Body:    body,
		},
		Responses: responses,
		Priority:  e.Priority,
	}, nil
}

func (r responseRaw) response(faker *gofakeit.Faker, baseDir string) (*Response, error) {
	identifier := r.Identifier
	if identifier == "" {
		identifier = uuid.New().String()
	}

	statusCode := r.StatusCode
	if statusCode == 0 {
		statusCode = 200
	}

	body, err := r.body(faker, baseDir)
	if err != nil {
		return nil, err
	}

	repeatability := Unlimited()
	if r.Repeatability > 0 {
		repeatability = Limited(r.Repeatability)
	}

	var delay time.Duration
	if r.Delay != "" {
		delay, err = time.ParseDuration(r.Delay)
		if err != nil {
			return nil, fmt.Errorf("invalid delay: %w", err)
		}
		if delay < 0 {
			delay = 0
		}
	}

	return &Response{
		Identifier:     identifier,
		StatusCode:     statusCode,
		Headers:        r.Headers,
		Body:           body,
		RedirectionURL: r.RedirectURL,
		Repeatability:  repeatability,
		Delay:          delay,
	}, nil
}

func (r responseRaw) body(faker *gofakeit.Faker, baseDir string) ([]byte, error) {
	declared := 0
	for _, set := range []bool{r.Body != "", r.BodyFile != "", r.BodyTemplate != ""} {
		if set {
			declared++
		}
	}
	if declared > 1 {
		return nil, fmt.Errorf("response declares more than one body source")
	}

	switch {
	case r.Body != "":
		return []byte(r.Body), nil
	case r.BodyFile != "":
		data, err := os.ReadFile(filepath.Join(baseDir, r.BodyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		return data, nil
	case r.BodyTemplate != "":
		rendered, err := faker.Template(r.BodyTemplate, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}
		return []byte(rendered), nil
	default:
		return nil, nil
	}
}
