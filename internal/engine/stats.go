package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/civitas-labs/munaudit/internal/dataset"
	"github.com/civitas-labs/munaudit/pkg/core"
)

// Sample-size floors below which outlier bounds are statistically
// meaningless and the peer group is skipped outright.
const (
	minGroupSize  = 3 // any method
	minIQRSamples = 4 // quartiles additionally need four points
)

// StatsConfig names the demographics table and columns the peer-grouping
// strategies read. Defaults match the questionnaire export format.
type StatsConfig struct {
	DemographicsTable string
	PopulationColumn  string
	DistrictColumn    string
	GradeColumn       string
}

// DefaultStatsConfig returns the questionnaire export conventions.
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		DemographicsTable: "p1_1_1_2",
		PopulationColumn:  "p1_1_3_4_tot_25_no",
		DistrictColumn:    "district_name",
		GradeColumn:       "p1_1_1_2_grade",
	}
}

// statsEngine detects entities whose computed metric is an outlier
// relative to a peer group. It materializes every entity's metric in
// memory before computing bounds; memory scales with the entity count.
type statsEngine struct {
	store  DataStore
	cfg    StatsConfig
	logger *slog.Logger
}

// peerGroup is a named cohort of entity ids compared against each other.
type peerGroup struct {
	name string
	ids  []string
}

// iqrBounds holds the interquartile-range outlier bounds of one group.
type iqrBounds struct {
	q1, q3, iqr  float64
	lower, upper float64
	multiplier   float64
	n            int
}

// zscoreBounds holds the z-score outlier bounds of one group.
type zscoreBounds struct {
	mean, std    float64
	lower, upper float64
	limit        float64
	n            int
}

// evaluateRule runs one statistical rule across the whole entity
// population and returns its outlier findings.
func (se *statsEngine) evaluateRule(rule *core.Rule) []core.Finding {
	se.logger.Debug("evaluating statistical rule", "rule", rule.ID, "method", rule.Validation.String())

	metrics := se.collectMetrics(rule)
	groups := se.peerGroups(rule)
	if len(groups) == 0 {
		se.logger.Warn("no peer groups for rule", "rule", rule.ID)
		return nil
	}

	var findings []core.Finding
	for _, group := range groups {
		values := make([]float64, 0, len(group.ids))
		for _, id := range group.ids {
			if v, ok := metrics[id]; ok {
				values = append(values, v)
			}
		}
		if len(values) < minGroupSize {
			se.logger.Debug("insufficient peer-group data, skipping",
				"rule", rule.ID, "group", group.name, "n", len(values))
			continue
		}

		var lower, upper float64
		var detailFor func(value float64, position string, bound float64) string

		switch rule.Validation {
		case core.ValidationOutlierIQR:
			b, ok := computeIQRBounds(values, rule.Stats.IQRMultiplier)
			if !ok {
				se.logger.Debug("bounds unavailable for group", "rule", rule.ID, "group", group.name)
				continue
			}
			lower, upper = b.lower, b.upper
			detailFor = func(value float64, position string, bound float64) string {
				return fmt.Sprintf("Value %.2f is %s %.2f (IQR method, multiplier=%g, Q1=%.2f, Q3=%.2f, IQR=%.2f, peer group: %s, N=%d)",
					value, position, bound, b.multiplier, b.q1, b.q3, b.iqr, group.name, b.n)
			}
		case core.ValidationOutlierZScore:
			b, ok := computeZScoreBounds(values, rule.Stats.StddevLimit)
			if !ok {
				se.logger.Debug("bounds unavailable for group", "rule", rule.ID, "group", group.name)
				continue
			}
			lower, upper = b.lower, b.upper
			detailFor = func(value float64, position string, bound float64) string {
				z := 0.0
				if b.std > 0 {
					z = (value - b.mean) / b.std
				}
				return fmt.Sprintf("Value %.2f is %s %.2f (Z-score method, z=%.2f, limit=%g, mean=%.2f, std=%.2f, peer group: %s, N=%d)",
					value, position, bound, z, b.limit, b.mean, b.std, group.name, b.n)
			}
		default:
			se.logger.Error("not a statistical validation type", "rule", rule.ID, "type", rule.Validation.String())
			continue
		}

		for _, id := range group.ids {
			value, ok := metrics[id]
			if !ok {
				continue
			}
			if value >= lower && value <= upper {
				continue
			}
			position, bound := "above upper bound", upper
			if value < lower {
				position, bound = "below lower bound", lower
			}
			detail := detailFor(value, position, bound)
			if rule.Stats.Context != "" {
				detail += " | Context: " + rule.Stats.Context
			}
			findings = append(findings, newFinding(se.store, id, rule, detail))
		}
	}

	se.logger.Debug("statistical rule done", "rule", rule.ID, "outliers", len(findings))
	return findings
}

// collectMetrics computes the rule's metric for every known entity.
// Entities whose metric cannot be computed are simply absent from the
// result; statistical rules never emit evaluation-failure findings.
func (se *statsEngine) collectMetrics(rule *core.Rule) map[string]float64 {
	metrics := make(map[string]float64)
	for _, id := range se.store.EntityIDs() {
		t := se.store.EntityDataset(id, rule.PrimaryTable)
		if t == nil || t.NumRows() == 0 {
			continue
		}
		if rule.MultiPart {
			t = mergeMultiPart(se.store, id, rule, t)
			if t == nil {
				continue
			}
		}
		var value float64
		var err *EvalError
		if rule.Calc != core.CalcNone {
			value, _, err = calculate(rule, t)
		} else {
			value, err = resolveColumnValue(rule.Column(1), t)
		}
		if err != nil {
			continue
		}
		metrics[id] = value
	}
	return metrics
}

// mergeMultiPart joins the entity's reference table onto the primary
// dataset: by the entity id column when both carry it, positionally for
// singleton tables. Returns nil when the reference data is absent.
func mergeMultiPart(store DataStore, entityID string, rule *core.Rule, primary *dataset.Table) *dataset.Table {
	if rule.ReferenceTable == "" {
		return primary
	}
	ref := store.EntityDataset(entityID, rule.ReferenceTable)
	if ref == nil || ref.NumRows() == 0 {
		return nil
	}
	idCol := store.EntityIDColumn()
	if primary.HasColumn(idCol) && ref.HasColumn(idCol) {
		return primary.LeftJoin(ref, idCol)
	}
	return primary.ConcatColumns(ref)
}

// peerGroups partitions the entity population per the rule's grouping
// strategy. The statewide group is the fallback whenever the strategy
// cannot be applied.
func (se *statsEngine) peerGroups(rule *core.Rule) []peerGroup {
	switch rule.Stats.GroupBy {
	case core.PeerPopulationSize:
		return se.groupByPopulation(rule)
	case core.PeerDistrict:
		return se.groupByColumn(se.cfg.DistrictColumn)
	case core.PeerGrade:
		return se.groupByColumn(se.cfg.GradeColumn)
	default:
		return []peerGroup{{name: "statewide", ids: se.store.EntityIDs()}}
	}
}

// groupByPopulation selects entities whose population falls within the
// rule's bounds. Missing bounds degrade to the statewide group.
func (se *statsEngine) groupByPopulation(rule *core.Rule) []peerGroup {
	min, max := rule.Stats.PopulationMin, rule.Stats.PopulationMax
	if min == nil || max == nil {
		se.logger.Warn("population bounds missing, using statewide group", "rule", rule.ID)
		return []peerGroup{{name: "statewide", ids: se.store.EntityIDs()}}
	}

	demo := se.store.Table(se.cfg.DemographicsTable)
	if demo == nil {
		se.logger.Error("demographics table not found for population grouping", "table", se.cfg.DemographicsTable)
		return nil
	}
	if !demo.HasColumn(se.cfg.PopulationColumn) {
		se.logger.Error("population column not found", "column", se.cfg.PopulationColumn)
		return nil
	}

	idCol := se.store.EntityIDColumn()
	var ids []string
	for row := 0; row < demo.NumRows(); row++ {
		pop, ok := demo.NumericValue(row, se.cfg.PopulationColumn)
		if !ok || pop < *min || pop > *max {
			continue
		}
		if id, ok := demo.Value(row, idCol); ok && id != "" {
			ids = append(ids, id)
		}
	}
	name := fmt.Sprintf("pop_%dk-%dk", int(*min/1000), int(*max/1000))
	return []peerGroup{{name: name, ids: ids}}
}

// groupByColumn builds one group per distinct value of a demographics
// column, in first-seen row order.
func (se *statsEngine) groupByColumn(column string) []peerGroup {
	demo := se.store.Table(se.cfg.DemographicsTable)
	if demo == nil {
		se.logger.Error("demographics table not found for grouping", "table", se.cfg.DemographicsTable)
		return nil
	}
	if !demo.HasColumn(column) {
		se.logger.Error("grouping column not found", "column", column)
		return nil
	}

	idCol := se.store.EntityIDColumn()
	order, rowsByValue := demo.DistinctValues(column)
	groups := make([]peerGroup, 0, len(order))
	for _, v := range order {
		var ids []string
		for _, row := range rowsByValue[v] {
			if id, ok := demo.Value(row, idCol); ok && id != "" {
				ids = append(ids, id)
			}
		}
		groups = append(groups, peerGroup{name: v, ids: ids})
	}
	return groups
}

// quantile computes the q-th quantile of sorted values on the
// linear-interpolation convention.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// computeIQRBounds derives interquartile-range outlier bounds. Groups
// with fewer than four values report ok=false: quartiles over less data
// are noise, not bounds.
func computeIQRBounds(values []float64, multiplier float64) (iqrBounds, bool) {
	if len(values) < minIQRSamples {
		return iqrBounds{}, false
	}
	if multiplier <= 0 {
		multiplier = 1.5
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	return iqrBounds{
		q1: q1, q3: q3, iqr: iqr,
		lower:      q1 - multiplier*iqr,
		upper:      q3 + multiplier*iqr,
		multiplier: multiplier,
		n:          len(values),
	}, true
}

// computeZScoreBounds derives mean ± limit·stddev bounds using the
// sample standard deviation (ddof=1). Groups with fewer than three
// values report ok=false.
func computeZScoreBounds(values []float64, limit float64) (zscoreBounds, bool) {
	if len(values) < minGroupSize {
		return zscoreBounds{}, false
	}
	if limit <= 0 {
		limit = 2.0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)-1))

	return zscoreBounds{
		mean: mean, std: std,
		lower: mean - limit*std,
		upper: mean + limit*std,
		limit: limit,
		n:     len(values),
	}, true
}
