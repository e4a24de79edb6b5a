// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-multiview/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float64 `yaml:"iou_threshold" toml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `yaml:"class_aware" toml:"class_aware"`     // If true, suppress only within same class.
	MaxResults   int     `yaml:"max_results" toml:"max_results"`     // Upper bound on kept results, 0 for unlimited.
}

// DefaultNMSConfig returns the suppression settings used by the drink model.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		IoUThreshold: 0.7,
		ClassAware:   true,
		MaxResults:   300,
	}
}

// ApplyNMS performs greedy Non-Maximum Suppression.
//
// Detections are visited in descending score order; every later detection
// whose IoU with a kept one exceeds the threshold is suppressed.
//
// Arguments:
//   - detections: Slice of detections in any order. It is sorted in place.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, highest score first. If no detections are
//     provided, returns nil.
func ApplyNMS(detections []Result, config NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true
		if config.MaxResults > 0 && len(filtered) == config.MaxResults {
			break
		}

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != detections[j].Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
