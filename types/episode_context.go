package types

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EpisodeContext carries what a single episode needs besides the collaborators
type EpisodeContext struct {
	Context context.Context

	Run     string // id of the training run
	Episode int    // index of the episode, starting from 0

	Report *EpisodeReport
}

func NewEpisodeContext(ctx context.Context, run string, episode int) *EpisodeContext {
	return &EpisodeContext{
		Context: ctx,
		Run:     run,
		Episode: episode,
		Report:  NewEpisodeReport(episode),
	}
}

// EPISODE REPORT

// Report of an episode, collects timings and counters keyed by entry type
type EpisodeReport struct {
	Episode     int
	episodeStep int

	startTime time.Time
	lock      sync.Mutex

	TimeValues map[string][]time.Duration
	IntValues  map[string][]int
}

func NewEpisodeReport(episode int) *EpisodeReport {
	return &EpisodeReport{
		Episode:    episode,
		startTime:  time.Now(),
		TimeValues: make(map[string][]time.Duration),
		IntValues:  make(map[string][]int),
	}
}

// set the current episode step in the report
func (e *EpisodeReport) setEpisodeStep(step int) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.episodeStep = step
}

// Step is the last step the episode reached
func (e *EpisodeReport) Step() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.episodeStep
}

// add a new entry of type int to the report
func (e *EpisodeReport) AddIntEntry(value int, entryType string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.IntValues[entryType] = append(e.IntValues[entryType], value)
}

// add a new entry of type time.Duration to the report
func (e *EpisodeReport) AddTimeEntry(value time.Duration, entryType string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.TimeValues[entryType] = append(e.TimeValues[entryType], value)
}

// Elapsed since the report was created
func (e *EpisodeReport) Elapsed() time.Duration {
	return time.Since(e.startTime)
}

// TotalTime spent in entries of the given type
func (e *EpisodeReport) TotalTime(entryType string) time.Duration {
	e.lock.Lock()
	defer e.lock.Unlock()
	total := time.Duration(0)
	for _, d := range e.TimeValues[entryType] {
		total += d
	}
	return total
}

// return a string representation of the report entries per type,
// one line per type with count and total/mean for durations
func (e *EpisodeReport) StringPerType() string {
	e.lock.Lock()
	defer e.lock.Unlock()

	lines := make([]string, 0, len(e.TimeValues)+len(e.IntValues))
	for entryType, entries := range e.TimeValues {
		total := time.Duration(0)
		for _, d := range entries {
			total += d
		}
		mean := time.Duration(0)
		if len(entries) > 0 {
			mean = total / time.Duration(len(entries))
		}
		lines = append(lines, fmt.Sprintf("%s [%d]: total %s, mean %s", entryType, len(entries), total, mean))
	}
	for entryType, entries := range e.IntValues {
		sum := 0
		for _, v := range entries {
			sum += v
		}
		lines = append(lines, fmt.Sprintf("%s [%d]: sum %d", entryType, len(entries), sum))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
