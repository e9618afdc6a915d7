package domain

import (
	"fmt"
	"strings"
)

// Status is the in-memory on/off state of the blocker. The zero value is
// StatusOff, which is also the state after every process start.
type Status uint8

const (
	StatusOff Status = iota
	StatusOn
)

// String returns "ON" or "OFF".
func (s Status) String() string {
	switch s {
	case StatusOn:
		return "ON"
	case StatusOff:
		return "OFF"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// ParseStatus converts "ON"/"OFF" (case-insensitive) into a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON":
		return StatusOn, nil
	case "OFF":
		return StatusOff, nil
	default:
		return StatusOff, fmt.Errorf("unsupported status: %q", s)
	}
}

// MarshalText encodes the status as "ON" or "OFF".
func (s Status) MarshalText() ([]byte, error) {
	if s != StatusOn && s != StatusOff {
		return nil, fmt.Errorf("unsupported status: %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes "ON" or "OFF".
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
