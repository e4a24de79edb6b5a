package features

import (
	"image"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-multiview/homography"
)

// SIFTMatcher matches SIFT keypoints with a brute-force L2 matcher and the
// ratio test. It allocates its OpenCV objects per call and is safe for
// concurrent use.
type SIFTMatcher struct {
	config Config
}

// NewSIFTMatcher creates a new SIFT matcher.
//
// Arguments:
//   - config: The matching configuration.
//
// Returns:
//   - *SIFTMatcher: The matcher.
func NewSIFTMatcher(config Config) *SIFTMatcher {
	if config.Ratio <= 0 {
		config.Ratio = DefaultConfig().Ratio
	}
	return &SIFTMatcher{config: config}
}

// Match returns the ratio-test survivors between a and b. Images without
// keypoints yield no correspondences rather than an error.
func (m *SIFTMatcher) Match(a, b image.Image) ([]homography.Correspondence, error) {
	kpA, descA, err := m.extract(a)
	if err != nil {
		return nil, errors.Wrap(err, "extracting features from first view")
	}
	defer descA.Close()

	kpB, descB, err := m.extract(b)
	if err != nil {
		return nil, errors.Wrap(err, "extracting features from second view")
	}
	defer descB.Close()

	if len(kpA) == 0 || len(kpB) < 2 || descA.Empty() || descB.Empty() {
		return nil, nil
	}

	bf := gocv.NewBFMatcher()
	defer bf.Close()

	knn := bf.KnnMatch(descA, descB, 2)
	candidates := make([]Candidates, 0, len(knn))
	for _, matches := range knn {
		if len(matches) == 0 {
			continue
		}
		c := Candidates{Query: keypointPoint(kpA[matches[0].QueryIdx])}
		for _, d := range matches {
			c.Neighbors = append(c.Neighbors, Neighbor{
				Point:    keypointPoint(kpB[d.TrainIdx]),
				Distance: d.Distance,
			})
		}
		candidates = append(candidates, c)
	}

	return RatioTest(candidates, m.config.Ratio), nil
}

// extract detects keypoints on the grayscale image and keeps the strongest
// MaxFeatures of them.
func (m *SIFTMatcher) extract(img image.Image) ([]gocv.KeyPoint, gocv.Mat, error) {
	if img == nil {
		return nil, gocv.NewMat(), errors.New("nil image")
	}

	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, gocv.NewMat(), errors.Wrap(err, "converting image")
	}
	defer rgb.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)

	mask := gocv.NewMat()
	defer mask.Close()

	sift := gocv.NewSIFT()
	defer sift.Close()

	kps, desc := sift.DetectAndCompute(gray, mask)
	if m.config.MaxFeatures <= 0 || len(kps) <= m.config.MaxFeatures {
		return kps, desc, nil
	}

	responses := make([]float64, len(kps))
	for i, kp := range kps {
		responses[i] = kp.Response
	}
	keep := strongest(responses, m.config.MaxFeatures)

	trimmed := gocv.NewMatWithSize(len(keep), desc.Cols(), desc.Type())
	out := make([]gocv.KeyPoint, len(keep))
	for row, idx := range keep {
		out[row] = kps[idx]
		for col := 0; col < desc.Cols(); col++ {
			trimmed.SetFloatAt(row, col, desc.GetFloatAt(idx, col))
		}
	}
	desc.Close()

	return out, trimmed, nil
}

// strongest returns the indices of the n largest responses, strongest first.
// Ties keep detection order.
func strongest(responses []float64, n int) []int {
	idx := make([]int, len(responses))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return responses[idx[a]] > responses[idx[b]]
	})
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}

func keypointPoint(kp gocv.KeyPoint) r2.Point {
	return r2.Point{X: kp.X, Y: kp.Y}
}
