package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"netmon/pkg/monitor"
)

// RecordEnvelope is the simplified, round-trippable encoding of one request
// record.
type RecordEnvelope struct {
	Identifier string          `json:"identifier"`
	Request    RequestEnvelope `json:"request"`
	Conclusion string          `json:"response"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	// TimeSpent is the elapsed seconds between start and conclusion.
	TimeSpent *float64 `json:"timeSpent,omitempty"`

	RequestSize  int64 `json:"requestSize"`
	ResponseSize int64 `json:"responseSize"`
}

// RequestEnvelope carries the request side of an exported record.
type RequestEnvelope struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Container is the top-level exported document.
type Container struct {
	ExportedAt time.Time        `json:"exportedAt"`
	Records    []RecordEnvelope `json:"records"`
}

// envelope builds the simplified encoding of a record.
func envelope(record *monitor.Record) RecordEnvelope {
	e := RecordEnvelope{
		Identifier:   record.Key,
		Conclusion:   "-",
		StartedAt:    record.StartTimestamp,
		RequestSize:  record.RequestSize,
		ResponseSize: record.ResponseSize,
	}

	if record.Request != nil {
		e.Request = RequestEnvelope{
			Method: record.Request.Method,
			URL:    record.Request.URL,
		}
	}

	if record.Conclusion != nil {
		e.Conclusion = record.Conclusion.DisplayRepresentation()
		ended := record.EndTimestamp
		e.EndedAt = &ended

		if spent, ok := record.TimeSpent(); ok {
			seconds := spent.Seconds()
			e.TimeSpent = &seconds
		}
	}

	return e
}

// ReadContainer decodes a previously exported records file.
func ReadContainer(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exported records: %w", err)
	}

	var container Container
	if err := json.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("failed to decode exported records: %w", err)
	}

	return &container, nil
}
