package core

import (
	"encoding/json"
	"strings"
)

// Severity indicates the importance of an audit finding.
type Severity int

// Severity levels, highest first.
const (
	// SeverityCritical indicates a hard data error that invalidates the return.
	SeverityCritical Severity = iota
	// SeverityHigh indicates a likely error that needs follow-up with the entity.
	SeverityHigh
	// SeverityMedium indicates a value outside its plausible range.
	SeverityMedium
	// SeverityLow indicates a minor anomaly worth a second look.
	SeverityLow
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	case SeverityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// MarshalJSON encodes the severity as its name so reports stay readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a severity name, defaulting invalid input to Medium.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, _ := ParseSeverity(name)
	*s = v
	return nil
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityMedium and false if
// invalid. Medium is the catalog's documented default for blank severities.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, true
	case "high":
		return SeverityHigh, true
	case "medium":
		return SeverityMedium, true
	case "low":
		return SeverityLow, true
	default:
		return SeverityMedium, false
	}
}
