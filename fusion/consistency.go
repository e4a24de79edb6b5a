package fusion

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-multiview/labels"
)

// ReservedLabels names the two container categories whose totals are expected
// to cover every other label.
type ReservedLabels struct {
	Bottle labels.Label `yaml:"bottle" toml:"bottle" json:"bottle"`
	Can    labels.Label `yaml:"can" toml:"can" json:"can"`
}

// DefaultReservedLabels returns the "bottle" and "can" labels.
func DefaultReservedLabels() ReservedLabels {
	return ReservedLabels{Bottle: labels.Bottle, Can: labels.Can}
}

// Labels returns both reserved labels.
func (r ReservedLabels) Labels() []labels.Label {
	return []labels.Label{r.Bottle, r.Can}
}

// ContainerTotals are the fused counts of the reserved labels.
type ContainerTotals struct {
	Bottle int `json:"bottle_total"`
	Can    int `json:"can_total"`
}

// Sum returns Bottle + Can.
func (t ContainerTotals) Sum() int {
	return t.Bottle + t.Can
}

// Containers reads the reserved label totals from a fused result. Absent
// labels count as zero.
func Containers(fused Counts, reserved ReservedLabels) ContainerTotals {
	return ContainerTotals{
		Bottle: fused[reserved.Bottle],
		Can:    fused[reserved.Can],
	}
}

// Consistency is the outcome of comparing the container totals with the sum
// of every fused count. A mismatch is a warning, never an error.
type Consistency struct {
	Totals        ContainerTotals `json:"totals"`
	CombinedTotal int             `json:"combined_total"`
	OK            bool            `json:"consistency_ok"`
	Diagnostic    string          `json:"diagnostic,omitempty"`
}

// CheckConsistency compares bottle + can with the sum of all fused counts.
//
// Arguments:
//   - fused: The fused result. It is not modified.
//   - reserved: The container labels.
//
// Returns:
//   - Consistency: OK when the totals agree, otherwise with a diagnostic.
func CheckConsistency(fused Counts, reserved ReservedLabels) Consistency {
	c := Consistency{
		Totals:        Containers(fused, reserved),
		CombinedTotal: fused.Total(),
	}
	c.OK = c.Totals.Sum() == c.CombinedTotal
	if !c.OK {
		c.Diagnostic = fmt.Sprintf(
			"quantities do not match: %s + %s = %d, combined quantities = %d",
			reserved.Bottle, reserved.Can, c.Totals.Sum(), c.CombinedTotal,
		)
	}
	return c
}

// Log writes a warning for a mismatch and nothing otherwise.
func (c Consistency) Log(logger *zap.Logger) {
	if c.OK || logger == nil {
		return
	}
	logger.Warn("fused counts inconsistent with container totals",
		zap.Int("bottle_total", c.Totals.Bottle),
		zap.Int("can_total", c.Totals.Can),
		zap.Int("combined_total", c.CombinedTotal),
		zap.String("diagnostic", c.Diagnostic),
	)
}
