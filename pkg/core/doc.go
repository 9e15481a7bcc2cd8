// Package core holds the shared value types of the audit framework:
// validation rules, severities, findings, and the column reference
// variants the rule catalog is parsed into. It carries data, not
// behavior, so every other package can depend on it without cycles.
package core
