package types

import (
	"encoding/json"
	"fmt"
)

// Status is the recommendation status of a food or composite.
// The numeric order is the severity order used by Combine.
type Status int

const (
	StatusNeutral Status = iota
	StatusRecommend
	StatusAvoid
)

func (s Status) String() string {
	switch s {
	case StatusAvoid:
		return "avoid"
	case StatusRecommend:
		return "recommend"
	default:
		return "neutral"
	}
}

// ParseStatus parses "avoid", "recommend" or "neutral"
func ParseStatus(v string) (Status, error) {
	switch v {
	case "avoid":
		return StatusAvoid, nil
	case "recommend":
		return StatusRecommend, nil
	case "neutral", "":
		return StatusNeutral, nil
	}
	return StatusNeutral, fmt.Errorf("unknown recommendation status %q", v)
}

// Combine returns the more severe of s and o (avoid > recommend > neutral)
func (s Status) Combine(o Status) Status {
	if o > s {
		return o
	}
	return s
}

// CombineAll folds Combine over statuses, starting from neutral
func CombineAll(statuses ...Status) Status {
	out := StatusNeutral
	for _, s := range statuses {
		out = out.Combine(s)
	}
	return out
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
