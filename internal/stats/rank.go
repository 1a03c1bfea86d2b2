package stats

import (
	"math"
	"sort"
)

// MetricCount is one ranked label and how often it occurred.
type MetricCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Counter tallies keys and remembers the order they were first seen in, so
// ties rank the same way on every run.
type Counter struct {
	order  []string
	counts map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: map[string]int{}}
}

func (c *Counter) Add(key string, n int) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

func (c *Counter) Inc(key string) { c.Add(key, 1) }

func (c *Counter) Get(key string) int { return c.counts[key] }

func (c *Counter) Len() int { return len(c.order) }

// Keys returns every key in first-seen order.
func (c *Counter) Keys() []string {
	return append([]string(nil), c.order...)
}

// Top returns the n most frequent keys, count descending, ties by first
// appearance. n <= 0 returns everything.
func (c *Counter) Top(n int) []MetricCount {
	out := make([]MetricCount, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, MetricCount{Name: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopN ranks keys by frequency.
func TopN(keys []string, n int) []MetricCount {
	c := NewCounter()
	for _, k := range keys {
		c.Inc(k)
	}
	return c.Top(n)
}

// average is the rounded mean of values, 0 when there are none.
func average(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return int64(math.Round(float64(sum) / float64(len(values))))
}

// percent is round(100 * part / whole), 0 when whole is 0.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}
