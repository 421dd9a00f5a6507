package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date is an instant. It accepts RFC 3339 strings or milliseconds since the
// epoch and always serializes as RFC 3339 in UTC.
type Date struct {
	time.Time
}

func (Date) ImplementsGraphQLType(name string) bool { return name == "Date" }

func (d *Date) UnmarshalGraphQL(input interface{}) error {
	switch v := input.(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("invalid Date %q: %w", v, err)
		}
		d.Time = t
	case int32:
		d.Time = time.UnixMilli(int64(v))
	case int64:
		d.Time = time.UnixMilli(v)
	case float64:
		d.Time = time.UnixMilli(int64(v))
	default:
		return fmt.Errorf("wrong type for Date: %T", input)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339))
}

func dateOf(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{*t}
}

func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
