package fusion

// FuseMax fuses per-camera counts by taking, for every label seen by any
// camera, the largest count any single camera reported.
//
// The same physical item may be visible from several cameras, so summing would
// double count it. The maximum is the count of the camera with the best
// vantage for that label. It does not check that the cameras saw the same
// instances.
//
// FuseMax is idempotent and independent of argument order. Negative counts are
// ignored; a label only reported with negative counts is absent from the result.
//
// Arguments:
//   - sets: One Counts per camera. Nil sets contribute nothing.
//
// Returns:
//   - Counts: The fused counts, empty (never nil) for no input.
func FuseMax(sets ...Counts) Counts {
	out := make(Counts)
	for _, set := range sets {
		for l, n := range set {
			if n < 0 {
				continue
			}
			out[l] = max(out[l], n)
		}
	}
	return out
}
