package dashboard

import (
	"math"
	"sort"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

// counter tallies string categories and remembers first-encounter order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(value string) {
	if _, ok := c.counts[value]; !ok {
		c.order = append(c.order, value)
	}
	c.counts[value]++
}

func (c *counter) values() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ranked orders categories by descending count; ties keep first-encounter order.
func (c *counter) ranked() []models.CategoryCount {
	out := make([]models.CategoryCount, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, models.CategoryCount{Value: v, Count: c.counts[v]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

func (c *counter) mode() models.CategoryCount {
	ranked := c.ranked()
	if len(ranked) == 0 {
		return models.CategoryCount{}
	}
	return ranked[0]
}

// Quantile interpolates linearly between the closest ranks.
// It returns NaN for an empty input.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
