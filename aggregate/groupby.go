package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aaronlmathis/mobility/core"
)

type namedAggregator struct {
	output string
	agg    Aggregator
}

type group struct {
	key    core.Record
	values []namedAggregator
}

// GroupBy groups records by the values of groupFields and folds each group
// through the configured aggregators. It implements core.DataSink so it can
// sit next to the real sinks of a pipeline; it never fails on flush or close.
type GroupBy struct {
	mu          sync.Mutex
	groupFields []string
	aggregators []namedAggregator
	groups      map[string]*group
}

// NewGroupBy creates a grouping over groupFields.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{
		groupFields: append([]string(nil), groupFields...),
		groups:      make(map[string]*group),
	}
}

func (g *GroupBy) add(output string, agg Aggregator) *GroupBy {
	g.aggregators = append(g.aggregators, namedAggregator{output: output, agg: agg})
	return g
}

// Count counts the records of each group into outputField.
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.add(outputField, &CountAggregator{})
}

// Sum sums an integer field.
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.add(outputField, &SumAggregator{Field: field})
}

// Avg averages an integer field as float64.
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.add(outputField, &AvgAggregator{Field: field})
}

// Min tracks the smallest value of an integer field.
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.add(outputField, &MinAggregator{Field: field})
}

// Max tracks the largest value of an integer field.
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.add(outputField, &MaxAggregator{Field: field})
}

// Write implements the core.DataSink interface.
func (g *GroupBy) Write(ctx context.Context, record core.Record) error {
	key, keyRecord := g.groupKey(record)

	g.mu.Lock()
	defer g.mu.Unlock()

	grp, exists := g.groups[key]
	if !exists {
		grp = &group{key: keyRecord, values: make([]namedAggregator, len(g.aggregators))}
		for i, a := range g.aggregators {
			grp.values[i] = namedAggregator{output: a.output, agg: a.agg.Clone()}
		}
		g.groups[key] = grp
	}
	for _, a := range grp.values {
		if err := a.agg.Add(record); err != nil {
			return fmt.Errorf("aggregate %s: %w", a.output, err)
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (g *GroupBy) Flush() error { return nil }

// Close implements the core.DataSink interface.
func (g *GroupBy) Close() error { return nil }

// Results returns one record per group holding the group fields and the
// aggregate outputs, ordered by group key.
func (g *GroupBy) Results() []core.Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]string, 0, len(g.groups))
	for k := range g.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]core.Record, 0, len(keys))
	for _, k := range keys {
		grp := g.groups[k]
		result := grp.key.Clone()
		for _, a := range grp.values {
			result[a.output] = a.agg.Result()
		}
		results = append(results, result)
	}
	return results
}

// Reset drops every group.
func (g *GroupBy) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups = make(map[string]*group)
}

// groupKey encodes the group field values. Nil sorts before any string.
func (g *GroupBy) groupKey(record core.Record) (string, core.Record) {
	parts := make([]string, len(g.groupFields))
	keyRecord := make(core.Record, len(g.groupFields))
	for i, field := range g.groupFields {
		value := record[field]
		keyRecord[field] = value
		if value == nil {
			parts[i] = "\x00"
		} else {
			parts[i] = "\x01" + fmt.Sprint(value)
		}
	}
	return strings.Join(parts, "\x1f"), keyRecord
}

// CountAggregator counts records.
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Add(record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() interface{} { return c.count }
func (c *CountAggregator) Reset()              { c.count = 0 }
func (c *CountAggregator) Clone() Aggregator   { return &CountAggregator{} }

// SumAggregator sums an integer field. Nil values are skipped.
type SumAggregator struct {
	Field string
	sum   int64
	set   bool
}

func (s *SumAggregator) Add(record core.Record) error {
	n, ok, err := integerField(record, s.Field)
	if err != nil || !ok {
		return err
	}
	s.sum += n
	s.set = true
	return nil
}

func (s *SumAggregator) Result() interface{} {
	if !s.set {
		return nil
	}
	return s.sum
}

func (s *SumAggregator) Reset()            { s.sum, s.set = 0, false }
func (s *SumAggregator) Clone() Aggregator { return &SumAggregator{Field: s.Field} }

// AvgAggregator averages an integer field. Nil values are skipped.
type AvgAggregator struct {
	Field string
	sum   int64
	count int64
}

func (a *AvgAggregator) Add(record core.Record) error {
	n, ok, err := integerField(record, a.Field)
	if err != nil || !ok {
		return err
	}
	a.sum += n
	a.count++
	return nil
}

func (a *AvgAggregator) Result() interface{} {
	if a.count == 0 {
		return nil
	}
	return float64(a.sum) / float64(a.count)
}

func (a *AvgAggregator) Reset()            { a.sum, a.count = 0, 0 }
func (a *AvgAggregator) Clone() Aggregator { return &AvgAggregator{Field: a.Field} }

// MinAggregator tracks the smallest value of an integer field.
type MinAggregator struct {
	Field string
	min   int64
	set   bool
}

func (m *MinAggregator) Add(record core.Record) error {
	n, ok, err := integerField(record, m.Field)
	if err != nil || !ok {
		return err
	}
	if !m.set || n < m.min {
		m.min, m.set = n, true
	}
	return nil
}

func (m *MinAggregator) Result() interface{} {
	if !m.set {
		return nil
	}
	return m.min
}

func (m *MinAggregator) Reset()            { m.min, m.set = 0, false }
func (m *MinAggregator) Clone() Aggregator { return &MinAggregator{Field: m.Field} }

// MaxAggregator tracks the largest value of an integer field.
type MaxAggregator struct {
	Field string
	max   int64
	set   bool
}

func (m *MaxAggregator) Add(record core.Record) error {
	n, ok, err := integerField(record, m.Field)
	if err != nil || !ok {
		return err
	}
	if !m.set || n > m.max {
		m.max, m.set = n, true
	}
	return nil
}

func (m *MaxAggregator) Result() interface{} {
	if !m.set {
		return nil
	}
	return m.max
}

func (m *MaxAggregator) Reset()            { m.max, m.set = 0, false }
func (m *MaxAggregator) Clone() Aggregator { return &MaxAggregator{Field: m.Field} }

// integerField reads field as int64. ok is false for missing and nil values.
func integerField(record core.Record, field string) (n int64, ok bool, err error) {
	switch v := record[field].(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("field %s: expected integer, got %T", field, v)
	}
}
