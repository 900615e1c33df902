package types

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/stat"
)

// History keeps a rolling window of the total rewards of the last episodes
type History struct {
	capacity  int
	threshold float64
	window    deque.Deque[float64]
}

// NewHistory creates a history of the given capacity.
// The task counts as solved when the rolling mean reaches threshold.
func NewHistory(capacity int, threshold float64) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		capacity:  capacity,
		threshold: threshold,
	}
}

func (h *History) Capacity() int {
	return h.capacity
}

// Append a reward, evicting the oldest one when over capacity
func (h *History) Append(reward float64) {
	h.window.PushBack(reward)
	for h.window.Len() > h.capacity {
		h.window.PopFront()
	}
}

func (h *History) Len() int {
	return h.window.Len()
}

// Values in insertion order, oldest first
func (h *History) Values() []float64 {
	out := make([]float64, h.window.Len())
	for i := range out {
		out[i] = h.window.At(i)
	}
	return out
}

// Mean over whatever is in the window, 0 when empty
func (h *History) Mean() float64 {
	if h.window.Len() == 0 {
		return 0
	}
	return stat.Mean(h.Values(), nil)
}

// Solved reports whether the current mean meets the threshold
func (h *History) Solved() bool {
	return h.window.Len() > 0 && h.Mean() >= h.threshold
}

// Update appends the episode reward, prints the progress block to w
// and returns the rolling mean along with the solved flag
func (h *History) Update(w io.Writer, result *EpisodeResult) (float64, bool) {
	h.Append(result.TotalReward)
	mean := h.Mean()
	logs := []string{
		strings.Repeat("-", 20),
		fmt.Sprintf("Episode %d", result.Episode),
		fmt.Sprintf("Finished at t=%d", result.LastStep),
		fmt.Sprintf("Average reward for the last %d episodes: %s", h.capacity, formatReward(mean)),
		fmt.Sprintf("Reward for this episode: %s", formatReward(result.TotalReward)),
	}
	if w != nil {
		fmt.Fprintln(w, strings.Join(logs, "\n"))
	}
	return mean, mean >= h.threshold
}

// formatReward prints the shortest exact decimal, always with a fractional part
func formatReward(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
