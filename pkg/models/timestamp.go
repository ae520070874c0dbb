package models

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp marshals to the API's wire format: UTC ISO-8601 with microsecond
// precision and a literal "Z" suffix (e.g. "2026-08-28T14:03:07.123456Z").
// Fractional digits are omitted when the instant is whole-second.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates to microsecond precision, the finest the wire carries.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Microsecond)}
}

func (ts Timestamp) String() string {
	t := ts.UTC()
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05") + "Z"
	}
	return t.Format("2006-01-02T15:04:05.000000") + "Z"
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.String() + `"`), nil
}

// Accepted inbound layouts. Clients send either the wire format or the
// space-separated form used by the admin endpoints.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*ts = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts = NewTimestamp(t)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
