// Package fusion - Reconciles per-camera detections into one count per label.
package fusion

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-multiview/labels"
)

// Counts maps a label to a non-negative number of observed instances. It is
// used both for one camera's aggregation and for the fused result.
type Counts map[labels.Label]int

// Total returns the sum of all counts.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Clone returns a copy of c. The clone of a nil map is an empty map.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for l, v := range c {
		out[l] = v
	}
	return out
}

// Labels returns the labels present in c in lexical order.
func (c Counts) Labels() []labels.Label {
	out := make([]labels.Label, 0, len(c))
	for l := range c {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Without returns a copy of c without the given labels.
func (c Counts) Without(drop ...labels.Label) Counts {
	out := c.Clone()
	for _, l := range drop {
		delete(out, l)
	}
	return out
}

// Validate reports the first malformed entry: an empty label or a negative count.
func (c Counts) Validate() error {
	for _, l := range c.Labels() {
		if l == "" {
			return errors.New("empty label")
		}
		if c[l] < 0 {
			return errors.Errorf("negative count %d for label %q", c[l], l)
		}
	}
	return nil
}

// ConfidenceSet maps a label to the confidences of its surviving detections.
// The length of each list is that label's count.
type ConfidenceSet map[labels.Label][]float64

// Counts reduces the set to plain counts.
func (s ConfidenceSet) Counts() Counts {
	out := make(Counts, len(s))
	for l, confs := range s {
		out[l] = len(confs)
	}
	return out
}
