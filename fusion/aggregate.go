package fusion

import (
	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/labels"
)

// keep reports whether a confidence survives the threshold. Only values
// strictly below the threshold are discarded; NaN never survives.
func keep(confidence, threshold float64) bool {
	return confidence >= threshold
}

// Aggregate reduces one camera's detections to label counts.
//
// Arguments:
//   - dets: The detections of one camera frame.
//   - threshold: Detections with a confidence strictly below it are discarded.
//
// Returns:
//   - Counts: The count of surviving detections per label. Empty, never nil,
//     when nothing survives.
func Aggregate(dets []detector.Detection, threshold float64) Counts {
	out, _ := AggregateWithVocabulary(dets, threshold, nil)
	return out
}

// AggregateWithVocabulary is Aggregate with labels validated against vocab.
// A nil vocabulary accepts every non-empty label.
//
// Returns:
//   - Counts: The counts of accepted detections.
//   - []labels.Label: The labels of detections that passed the threshold but
//     were rejected by the vocabulary, one entry per detection.
func AggregateWithVocabulary(dets []detector.Detection, threshold float64, vocab *labels.Vocabulary) (Counts, []labels.Label) {
	out := make(Counts)
	var rejected []labels.Label
	for _, d := range dets {
		if !keep(d.Confidence, threshold) {
			continue
		}
		if err := vocab.Validate(d.Label); err != nil {
			rejected = append(rejected, d.Label)
			continue
		}
		out[d.Label]++
	}
	return out, rejected
}

// AggregateConfidences is the confidence-tracking variant of Aggregate.
func AggregateConfidences(dets []detector.Detection, threshold float64) ConfidenceSet {
	out := make(ConfidenceSet)
	for _, d := range dets {
		if !keep(d.Confidence, threshold) || d.Label == "" {
			continue
		}
		out[d.Label] = append(out[d.Label], d.Confidence)
	}
	return out
}

// Weighted is a detection that stands for Quantity identical instances, as
// reported by counting detectors.
type Weighted struct {
	Label      labels.Label `json:"label"`
	Confidence float64      `json:"confidence"`
	Quantity   int          `json:"quantity"`
}

// AggregateWeighted sums quantities of the entries that survive the threshold.
// Non-positive quantities contribute nothing.
func AggregateWeighted(items []Weighted, threshold float64) Counts {
	out := make(Counts)
	for _, it := range items {
		if !keep(it.Confidence, threshold) || it.Label == "" || it.Quantity <= 0 {
			continue
		}
		out[it.Label] += it.Quantity
	}
	return out
}

// filter returns the detections that survive the threshold and vocabulary.
func filter(dets []detector.Detection, threshold float64, vocab *labels.Vocabulary) ([]detector.Detection, []labels.Label) {
	out := make([]detector.Detection, 0, len(dets))
	var rejected []labels.Label
	for _, d := range dets {
		if !keep(d.Confidence, threshold) {
			continue
		}
		if err := vocab.Validate(d.Label); err != nil {
			rejected = append(rejected, d.Label)
			continue
		}
		out = append(out, d)
	}
	return out, rejected
}
