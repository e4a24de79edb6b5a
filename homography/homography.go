// Package homography - Planar projective transforms between two camera views.
package homography

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/nvr-ai/go-multiview/images"
)

// MinCorrespondences is the number of point pairs that fix a homography.
const MinCorrespondences = 4

var (
	// ErrInsufficientCorrespondences is returned when fewer than
	// MinCorrespondences point pairs are available.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
	// ErrDegenerate is returned when the correspondences do not constrain a
	// unique homography (collinear points, no consensus, singular fit).
	ErrDegenerate = errors.New("degenerate correspondences")
)

// Homography is a 3x3 matrix mapping points of one image plane onto another.
// Indices are [row][column].
type Homography [3][3]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// At returns the element at row, col.
func (h Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps pt through the homography. It returns false when the point maps
// to infinity.
func (h Homography) Apply(pt r2.Point) (r2.Point, bool) {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	if math.Abs(z) < 1e-12 {
		return r2.Point{}, false
	}
	return r2.Point{X: x / z, Y: y / z}, true
}

// ReprojectBox maps a box through the homography by transforming its top-left
// and bottom-right corners and re-deriving an axis-aligned box from them.
//
// Arguments:
//   - r: The box in the source view.
//
// Returns:
//   - images.Rect: The box in the destination view.
//   - bool: False if a corner maps to infinity or the result is not a valid box.
func (h Homography) ReprojectBox(r images.Rect) (images.Rect, bool) {
	p1, ok1 := h.Apply(r2.Point{X: r.X1, Y: r.Y1})
	p2, ok2 := h.Apply(r2.Point{X: r.X2, Y: r.Y2})
	if !ok1 || !ok2 {
		return images.Rect{}, false
	}
	out := r2.RectFromPoints(p1, p2)
	box := images.Rect{X1: out.X.Lo, Y1: out.Y.Lo, X2: out.X.Hi, Y2: out.Y.Hi}
	return box, box.Valid()
}

// Correspondence is a matched point pair: Src in the first view, Dst in the second.
type Correspondence struct {
	Src r2.Point
	Dst r2.Point
}

// ReprojectionError returns the distance between H(Src) and Dst, or +Inf when
// Src maps to infinity.
func (h Homography) ReprojectionError(c Correspondence) float64 {
	p, ok := h.Apply(c.Src)
	if !ok {
		return math.Inf(1)
	}
	return p.Sub(c.Dst).Norm()
}

// Estimate fits the homography mapping every Src onto its Dst with the
// normalized direct linear transform (Multiple View Geometry, Alg 4.2).
//
// Arguments:
//   - corr: At least four correspondences, no three of them collinear.
//
// Returns:
//   - Homography: The least-squares fit, scaled so that H[2][2] is 1.
//   - error: ErrInsufficientCorrespondences or ErrDegenerate.
func Estimate(corr []Correspondence) (Homography, error) {
	if len(corr) < MinCorrespondences {
		return Homography{}, errors.Wrapf(ErrInsufficientCorrespondences, "have %d, need %d", len(corr), MinCorrespondences)
	}

	src := make([]r2.Point, len(corr))
	dst := make([]r2.Point, len(corr))
	for i, c := range corr {
		src[i], dst[i] = c.Src, c.Dst
	}
	if collinear(src) || collinear(dst) {
		return Homography{}, errors.Wrap(ErrDegenerate, "points are collinear")
	}

	nSrc, t1, _, ok1 := normalizePoints(src)
	nDst, _, t2inv, ok2 := normalizePoints(dst)
	if !ok1 || !ok2 {
		return Homography{}, errors.Wrap(ErrDegenerate, "points are coincident")
	}

	// Pad to at least 9 rows so that the full SVD always exposes a 9x9 V.
	rows := max(2*len(corr), 9)
	a := mat.NewDense(rows, 9, nil)
	for i := range nSrc {
		x, y := nSrc[i].X, nSrc[i].Y
		u, v := nDst[i].X, nDst[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Homography{}, errors.Wrap(ErrDegenerate, "svd did not converge")
	}
	values := svd.Values(nil)
	// A unique solution needs an eight dimensional row space.
	if len(values) < 9 || values[7] <= 1e-12*values[0] {
		return Homography{}, errors.Wrap(ErrDegenerate, "rank deficient system")
	}

	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// Denormalize: H = T2^-1 * Hn * T1.
	var tmp, full mat.Dense
	tmp.Mul(t2inv, hn)
	full.Mul(&tmp, t1)

	scale := full.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return Homography{}, errors.Wrap(ErrDegenerate, "homography maps the origin to infinity")
	}

	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = full.At(r, c) / scale
			if math.IsNaN(h[r][c]) || math.IsInf(h[r][c], 0) {
				return Homography{}, errors.Wrap(ErrDegenerate, "non-finite homography")
			}
		}
	}
	return h, nil
}

// normalizePoints translates the points to their centroid and scales them to
// an average distance of sqrt(2) from it (Multiple View Geometry, Alg 4.2).
// It returns the normalized points, the applied transform and its inverse.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, *mat.Dense, bool) {
	n := float64(len(pts))
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1 / n)

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / n
	}
	if d < 1e-12 {
		return nil, nil, nil, false
	}
	scale := math.Sqrt2 / d

	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = pt.Sub(mu).Mul(scale)
	}
	inverse := mat.NewDense(3, 3, []float64{
		1 / scale, 0, mu.X,
		0, 1 / scale, mu.Y,
		0, 0, 1,
	})
	forward := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	return out, forward, inverse, true
}

// collinear reports whether all points lie (numerically) on one line, using
// the ratio of the eigenvalues of their scatter matrix.
func collinear(pts []r2.Point) bool {
	if len(pts) < 3 {
		return true
	}
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1 / float64(len(pts)))

	var sxx, sxy, syy float64
	for _, pt := range pts {
		d := pt.Sub(mu)
		sxx += d.X * d.X
		sxy += d.X * d.Y
		syy += d.Y * d.Y
	}
	trace := sxx + syy
	if trace < 1e-12 {
		return true
	}
	det := sxx*syy - sxy*sxy
	disc := math.Sqrt(math.Max(0, trace*trace/4-det))
	small := trace/2 - disc
	large := trace/2 + disc
	return small <= 1e-9*large
}
