package utils

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// StepAggregate holds aggregate timing information for a step
type StepAggregate struct {
	Count    int
	Total    time.Duration
	Average  time.Duration
	Min      time.Duration
	Max      time.Duration
	StepName string
}

// PerformanceTracker aggregates how long the named steps of each scrape
// cycle take. It is safe for concurrent use.
type PerformanceTracker struct {
	now        func() time.Time
	aggregates map[string]*StepAggregate
	mu         sync.Mutex
}

func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{
		now:        time.Now,
		aggregates: make(map[string]*StepAggregate),
	}
}

// StartStep begins timing a step; call the returned func when it ends.
//
//	defer tracker.StartStep("store")()
func (pt *PerformanceTracker) StartStep(name string) func() {
	start := pt.now()
	return func() {
		pt.Record(name, pt.now().Sub(start))
	}
}

// Record adds one observation of step name.
func (pt *PerformanceTracker) Record(name string, d time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	agg, exists := pt.aggregates[name]
	if !exists {
		agg = &StepAggregate{StepName: name, Min: d, Max: d}
		pt.aggregates[name] = agg
	}

	agg.Count++
	agg.Total += d
	agg.Average = agg.Total / time.Duration(agg.Count)
	if d < agg.Min {
		agg.Min = d
	}
	if d > agg.Max {
		agg.Max = d
	}
}

// Aggregates returns a copy of all aggregates, slowest total first.
func (pt *PerformanceTracker) Aggregates() []StepAggregate {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	steps := make([]StepAggregate, 0, len(pt.aggregates))
	for _, agg := range pt.aggregates {
		steps = append(steps, *agg)
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Total != steps[j].Total {
			return steps[i].Total > steps[j].Total
		}
		return steps[i].StepName < steps[j].StepName
	})
	return steps
}

// GenerateAggregateReport generates an aggregate performance report
func (pt *PerformanceTracker) GenerateAggregateReport() string {
	var sb strings.Builder
	sb.WriteString("\n=== Aggregate Performance Report ===\n")

	for _, agg := range pt.Aggregates() {
		sb.WriteString(fmt.Sprintf(
			"Step: %s\n"+
				"  Count:   %d\n"+
				"  Total:   %v\n"+
				"  Average: %v\n"+
				"  Min:     %v\n"+
				"  Max:     %v\n",
			agg.StepName,
			agg.Count,
			agg.Total.Round(time.Millisecond),
			agg.Average.Round(time.Millisecond),
			agg.Min.Round(time.Millisecond),
			agg.Max.Round(time.Millisecond),
		))
	}

	return sb.String()
}
