package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/civitas-labs/munaudit/internal/dataset"
	"github.com/civitas-labs/munaudit/pkg/core"
)

// DataStore is the data-access collaborator the executor evaluates
// against. *dataset.Store satisfies it; tests substitute fixtures.
type DataStore interface {
	// EntityDataset returns the named table filtered to one entity's rows,
	// the whole table when it has no entity id column, or nil.
	EntityDataset(entityID, tableName string) *dataset.Table
	// Table returns the whole named table, or nil.
	Table(name string) *dataset.Table
	// EntityIDs returns every known entity id in roster order.
	EntityIDs() []string
	// EntityInfo returns the roster entry for one entity.
	EntityInfo(entityID string) (core.EntityInfo, bool)
	// EntityIDColumn returns the entity identifier column name.
	EntityIDColumn() string
}

// Config configures an Executor.
type Config struct {
	Stats  StatsConfig
	Logger *slog.Logger
}

// Executor evaluates the rule catalog against the data store and
// collects findings. One Executor serves one run: the diagnostic
// deduplication set is scoped to the instance, so it is not safe for
// concurrent reuse.
type Executor struct {
	store  DataStore
	logger *slog.Logger
	stats  *statsEngine

	// logged deduplicates diagnostic log lines within the run.
	logged map[string]struct{}
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store DataStore, cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	stats := cfg.Stats
	if stats.DemographicsTable == "" {
		stats = DefaultStatsConfig()
	}
	return &Executor{
		store:  store,
		logger: logger,
		stats:  &statsEngine{store: store, cfg: stats, logger: logger},
		logged: make(map[string]struct{}),
	}
}

// Execute evaluates every enabled rule. Threshold-family rules run
// entity by entity and complete before the statistical rules, which run
// once per rule across the whole population.
func (ex *Executor) Execute(rules []core.Rule) []core.Finding {
	var perEntity, statistical []*core.Rule
	for i := range rules {
		r := &rules[i]
		if !r.Enabled {
			continue
		}
		if r.Validation.Statistical() {
			statistical = append(statistical, r)
		} else {
			perEntity = append(perEntity, r)
		}
	}
	ex.logger.Info("executing rules",
		"per_entity", len(perEntity), "statistical", len(statistical),
		"entities", len(ex.store.EntityIDs()))

	var findings []core.Finding
	for _, rule := range perEntity {
		for _, id := range ex.store.EntityIDs() {
			if f := ex.evaluateEntity(rule, id); f != nil {
				findings = append(findings, *f)
			}
		}
	}
	for _, rule := range statistical {
		findings = append(findings, ex.stats.evaluateRule(rule)...)
	}

	ex.logger.Info("execution complete", "findings", len(findings))
	return findings
}

// evaluateEntity runs one rule against one entity. A panic in the
// evaluation of a single pair is converted into an evaluation-failure
// finding; one bad rule or row never aborts the run.
func (ex *Executor) evaluateEntity(rule *core.Rule, entityID string) (finding *core.Finding) {
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error("rule evaluation panicked",
				"rule", rule.ID, "entity", entityID, "panic", r)
			finding = ex.failureFinding(rule, entityID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	t := ex.store.EntityDataset(entityID, rule.PrimaryTable)
	if t == nil || t.NumRows() == 0 {
		return nil
	}

	switch rule.Validation {
	case core.ValidationThreshold, core.ValidationPercentage:
		return ex.evaluateThreshold(rule, entityID, t)
	case core.ValidationConsistency:
		return ex.evaluateConsistency(rule, entityID, t)
	case core.ValidationCompleteness:
		return ex.evaluateCompleteness(rule, entityID, t)
	case core.ValidationCrossTable:
		return ex.evaluateCrossTable(rule, entityID, t)
	default:
		ex.logOnce("rule:"+rule.ID+":unsupported", "unsupported validation type",
			"rule", rule.ID, "type", rule.Validation.String())
		return nil
	}
}

// evaluateThreshold computes the rule's metric and checks it against the
// threshold. Rules without a threshold produce no finding.
func (ex *Executor) evaluateThreshold(rule *core.Rule, entityID string, t *dataset.Table) *core.Finding {
	var (
		value       float64
		evalErr     *EvalError
		valueSource string
	)
	if rule.Calc != core.CalcNone {
		value, _, evalErr = calculate(rule, t)
		valueSource = rule.Calc.String() + " calculation"
	} else {
		value, evalErr = resolveColumnValue(rule.Column(1), t)
		valueSource = "column " + rule.Column(1).String()
	}

	if evalErr != nil && rule.MultiPart && rule.ReferenceTable != "" && multiPartRetryable(rule.Calc) {
		if v, retryErr := ex.multiPartValue(rule, entityID); retryErr == nil {
			value, evalErr = v, nil
			valueSource += " (multi-part)"
		} else {
			evalErr = retryErr
		}
	}

	if evalErr != nil {
		return ex.handleEvalError(rule, entityID, evalErr)
	}

	value = normalizeYearSerial(rule, value)

	if strings.TrimSpace(rule.Threshold) == "" {
		return nil
	}
	passed, detail := CheckThreshold(value, rule.Threshold, rule.Operator)
	if passed {
		if detail != "" {
			ex.logOnce("rule:"+rule.ID+":threshold", "malformed threshold configuration",
				"rule", rule.ID, "detail", detail)
		}
		return nil
	}
	return ex.violationFinding(rule, entityID, valueSource+": "+detail)
}

// multiPartRetryable reports whether a failed calculation can be retried
// with its second operand resolved from the reference table. Only the
// two-operand shapes qualify; everything else keeps its original error.
func multiPartRetryable(c core.CalcType) bool {
	switch c {
	case core.CalcRatio, core.CalcPercentage, core.CalcDifference:
		return true
	default:
		return false
	}
}

// multiPartValue retries a failed calculation with column_1 resolved
// from the primary table and column_2 from the rule's reference table.
func (ex *Executor) multiPartValue(rule *core.Rule, entityID string) (float64, *EvalError) {
	primary := ex.store.EntityDataset(entityID, rule.PrimaryTable)
	ref := ex.store.EntityDataset(entityID, rule.ReferenceTable)
	if primary == nil || ref == nil || ref.NumRows() == 0 {
		return 0, evalErrf(ErrMissingData, "reference table %q has no data", rule.ReferenceTable)
	}

	v1, err := resolveColumnValue(rule.Column(1), primary)
	if err != nil {
		return 0, err.withOperand("Primary value")
	}
	v2, err := resolveColumnValue(rule.Column(2), ref)
	if err != nil {
		return 0, err.withOperand("Reference value")
	}

	switch rule.Calc {
	case core.CalcRatio:
		if v2 == 0 {
			return 0, evalErrf(ErrDivisionByZero, "denominator cannot be zero")
		}
		return v1 / v2, nil
	case core.CalcPercentage:
		if v2 == 0 {
			return 0, evalErrf(ErrDivisionByZero, "denominator cannot be zero")
		}
		return v1 / v2 * 100, nil
	case core.CalcDifference:
		return v1 - v2, nil
	default:
		return 0, evalErrf(ErrUnsupported, "calculation type %s not supported for multi-part rules", rule.Calc.String())
	}
}

// evaluateConsistency compares two resolved values with the rule's
// operator. When the rule configures a difference with a third column,
// the comparison is column_1 against column_2 - column_3.
func (ex *Executor) evaluateConsistency(rule *core.Rule, entityID string, t *dataset.Table) *core.Finding {
	v1, err := resolveColumnValue(rule.Column(1), t)
	if err != nil {
		return ex.handleEvalError(rule, entityID, err.withOperand("First value"))
	}

	var v2 float64
	if rule.Calc == core.CalcDifference && rule.Column(3).IsSet() {
		a, err := resolveColumnValue(rule.Column(2), t)
		if err != nil {
			return ex.handleEvalError(rule, entityID, err.withOperand("Second value"))
		}
		b, err := resolveColumnValue(rule.Column(3), t)
		if err != nil {
			return ex.handleEvalError(rule, entityID, err.withOperand("Third value"))
		}
		v2 = a - b
	} else {
		var err *EvalError
		v2, err = resolveColumnValue(rule.Column(2), t)
		if err != nil {
			return ex.handleEvalError(rule, entityID, err.withOperand("Second value"))
		}
	}

	operator := rule.Operator
	if strings.TrimSpace(operator) == "" {
		operator = "="
	}
	passed, detail := compareValues(v1, v2, operator)
	if passed {
		return nil
	}
	return ex.violationFinding(rule, entityID, "Consistency: "+detail)
}

// evaluateCompleteness flags the rule's columns that are absent, all
// null, or all zero for the entity. All offending columns are listed in
// one finding.
func (ex *Executor) evaluateCompleteness(rule *core.Rule, entityID string, t *dataset.Table) *core.Finding {
	var columns []string
	switch ref := rule.Column(1); ref.Kind {
	case core.RefColumn:
		columns = []string{ref.Column}
	case core.RefColumnSum:
		columns = ref.Columns
	default:
		return ex.handleEvalError(rule, entityID,
			evalErrf(ErrMissingColumn, "column specification is missing"))
	}

	var offending []string
	for _, col := range columns {
		if !t.HasColumn(col) || t.AllNull(col) || t.AllZero(col) {
			offending = append(offending, col)
		}
	}
	if len(offending) == 0 {
		return nil
	}
	return ex.violationFinding(rule, entityID, "Missing/zero: "+strings.Join(offending, ", "))
}

// evaluateCrossTable compares column_1 from the primary dataset against
// column_2 from the rule's reference dataset.
func (ex *Executor) evaluateCrossTable(rule *core.Rule, entityID string, t *dataset.Table) *core.Finding {
	ref := ex.store.EntityDataset(entityID, rule.ReferenceTable)
	if ref == nil || ref.NumRows() == 0 {
		return nil
	}

	v1, err := resolveColumnValue(rule.Column(1), t)
	if err != nil {
		return ex.handleEvalError(rule, entityID, err.withOperand("Primary value"))
	}
	v2, err := resolveColumnValue(rule.Column(2), ref)
	if err != nil {
		return ex.handleEvalError(rule, entityID, err.withOperand("Reference value"))
	}

	operator := rule.Operator
	if strings.TrimSpace(operator) == "" {
		operator = "="
	}
	passed, _ := compareValues(v1, v2, operator)
	if passed {
		return nil
	}
	detail := fmt.Sprintf("Cross-table mismatch: primary column '%s' = %.2f, reference column '%s' = %.2f",
		rule.Column(1).String(), v1, rule.Column(2).String(), v2)
	return ex.violationFinding(rule, entityID, detail)
}

// handleEvalError applies the suppression policy. Zero denominators and
// non-numeric columns mean the rule does not apply to this entity's data
// shape: they are logged, never surfaced as findings. Everything else
// becomes an unable-to-evaluate finding.
func (ex *Executor) handleEvalError(rule *core.Rule, entityID string, err *EvalError) *core.Finding {
	switch err.Kind {
	case ErrDivisionByZero, ErrDomain:
		ex.logOnce("rule:"+rule.ID+":zero", "rule not applicable, zero or out-of-domain operand",
			"rule", rule.ID, "error", err.Msg)
		return nil
	case ErrNonNumeric:
		ex.logOnce("rule:"+rule.ID+":non_numeric", "rule not applicable, non-numeric source column",
			"rule", rule.ID, "error", err.Msg)
		return nil
	default:
		return ex.failureFinding(rule, entityID, err.Msg)
	}
}

// logOnce emits one warning per key per run.
func (ex *Executor) logOnce(key, msg string, args ...any) {
	if _, seen := ex.logged[key]; seen {
		return
	}
	ex.logged[key] = struct{}{}
	ex.logger.Warn(msg, args...)
}

// violationFinding builds a tier-3 finding at the rule's severity.
func (ex *Executor) violationFinding(rule *core.Rule, entityID, detail string) *core.Finding {
	f := newFinding(ex.store, entityID, rule, detail)
	return &f
}

// failureFinding builds an unable-to-evaluate finding at severity Medium.
func (ex *Executor) failureFinding(rule *core.Rule, entityID, detail string) *core.Finding {
	f := newFinding(ex.store, entityID, rule, "Unable to evaluate: "+detail)
	f.Severity = core.SeverityMedium
	return &f
}

// newFinding assembles a finding with the entity's roster info and the
// rule's reporting context.
func newFinding(store DataStore, entityID string, rule *core.Rule, detail string) core.Finding {
	info, ok := store.EntityInfo(entityID)
	if !ok {
		info = core.EntityInfo{ID: entityID, Name: "ID " + entityID}
	}
	return core.Finding{
		EntityID:       entityID,
		EntityName:     info.Name,
		District:       info.District,
		RuleID:         rule.ID,
		Part:           rule.Part,
		Severity:       rule.Severity,
		CheckType:      rule.Validation.String(),
		Description:    rule.Description,
		Detail:         detail,
		Column1:        rule.Column(1).String(),
		Column2:        rule.Column(2).String(),
		PrimaryTable:   rule.PrimaryTable,
		ReferenceTable: rule.ReferenceTable,
		Operator:       rule.Operator,
		Threshold:      rule.Threshold,
	}
}

// serialEpoch is the spreadsheet date-serial epoch.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// normalizeYearSerial corrects a known source-data defect where calendar
// years in year-like columns were entered as spreadsheet date serials.
// A value in the plausible serial range is converted to the calendar
// year of epoch + value days.
func normalizeYearSerial(rule *core.Rule, value float64) float64 {
	if value < 30000 || value > 60000 {
		return value
	}
	col := strings.ToLower(rule.Column(1).String())
	desc := strings.ToLower(rule.Description)
	if !strings.Contains(col, "year") && !strings.Contains(desc, "year") {
		return value
	}
	return float64(serialEpoch.AddDate(0, 0, int(value)).Year())
}
