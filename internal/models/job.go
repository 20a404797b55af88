package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidJob is returned when a job record is missing required fields.
var ErrInvalidJob = errors.New("invalid job")

// now is swapped in tests.
var now = time.Now

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Job is one unit of work delivered by the queue producer.
type Job struct {
	JobID          string         `json:"job_id"`
	CompanyID      string         `json:"company_id"`
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	Channel        string         `json:"channel"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UnmarshalJSON accepts created_at as an ISO-8601 string or a unix timestamp.
// A missing or unparseable value defaults to the time of decoding.
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(j)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	j.CreatedAt = parseCreatedAt(aux.CreatedAt)
	return nil
}

// Validate checks the identifiers every job must carry.
func (j *Job) Validate() error {
	var missing []string
	if strings.TrimSpace(j.JobID) == "" {
		missing = append(missing, "job_id")
	}
	if strings.TrimSpace(j.CompanyID) == "" {
		missing = append(missing, "company_id")
	}
	if strings.TrimSpace(j.ConversationID) == "" {
		missing = append(missing, "conversation_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidJob, strings.Join(missing, ", "))
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now()
	}
	return nil
}

func parseCreatedAt(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return now()
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return now()
		}
		s = strings.TrimSpace(s)
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return now()
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return now()
	}
	f, err := n.Float64()
	if err != nil || f <= 0 {
		return now()
	}
	// Millisecond timestamps are what JavaScript producers emit.
	if f > 1e12 {
		return time.UnixMilli(int64(f))
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}
