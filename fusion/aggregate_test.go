package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/labels"
)

func det(l labels.Label, conf float64) detector.Detection {
	return detector.Detection{Label: l, Confidence: conf, Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		dets      []detector.Detection
		threshold float64
		want      Counts
	}{
		{
			name:      "empty input",
			dets:      nil,
			threshold: 0.5,
			want:      Counts{},
		},
		{
			name:      "counts per label",
			dets:      []detector.Detection{det(labels.Can, 0.9), det(labels.Can, 0.6), det(labels.Bottle, 0.7)},
			threshold: 0.5,
			want:      Counts{labels.Can: 2, labels.Bottle: 1},
		},
		{
			name:      "strictly below threshold is discarded",
			dets:      []detector.Detection{det(labels.Can, 0.49999), det(labels.Can, 0.5)},
			threshold: 0.5,
			want:      Counts{labels.Can: 1},
		},
		{
			name:      "nothing survives",
			dets:      []detector.Detection{det(labels.Pepsi, 0.1)},
			threshold: 0.8,
			want:      Counts{},
		},
		{
			name:      "NaN confidence never survives",
			dets:      []detector.Detection{det(labels.Pepsi, math.NaN())},
			threshold: 0,
			want:      Counts{},
		},
		{
			name:      "empty label dropped",
			dets:      []detector.Detection{det("", 0.9)},
			threshold: 0.5,
			want:      Counts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.dets, tt.threshold)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregateWithVocabulary(t *testing.T) {
	dets := []detector.Detection{
		det(labels.Can, 0.9),
		det("sprite", 0.9),
		det("sprite", 0.1),
		det(labels.CocaCola, 0.8),
	}

	strict, rejected := AggregateWithVocabulary(dets, 0.5, labels.DrinkVocabulary())
	assert.Equal(t, Counts{labels.Can: 1, labels.CocaCola: 1}, strict)
	assert.Equal(t, []labels.Label{"sprite"}, rejected)

	open, rejected := AggregateWithVocabulary(dets, 0.5, labels.NewVocabulary(false))
	assert.Equal(t, Counts{labels.Can: 1, labels.CocaCola: 1, "sprite": 1}, open)
	assert.Empty(t, rejected)
}

func TestAggregateConfidences(t *testing.T) {
	got := AggregateConfidences([]detector.Detection{
		det(labels.Can, 0.9), det(labels.Can, 0.3), det(labels.Can, 0.7), det(labels.Pepsi, 0.75),
	}, 0.7)
	assert.Equal(t, ConfidenceSet{labels.Can: {0.9, 0.7}, labels.Pepsi: {0.75}}, got)
	assert.Equal(t, Counts{labels.Can: 2, labels.Pepsi: 1}, got.Counts())
}

func TestAggregateWeighted(t *testing.T) {
	got := AggregateWeighted([]Weighted{
		{Label: labels.Bottle, Confidence: 0.9, Quantity: 3},
		{Label: labels.Bottle, Confidence: 0.8, Quantity: 2},
		{Label: labels.Can, Confidence: 0.2, Quantity: 5},
		{Label: labels.Pepsi, Confidence: 0.9, Quantity: -1},
	}, 0.5)
	assert.Equal(t, Counts{labels.Bottle: 5}, got)
}

func TestAggregate_MonotonicInThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []labels.Label{labels.Bottle, labels.Can, labels.Pepsi, labels.BeerTiger}

	for trial := 0; trial < 50; trial++ {
		dets := make([]detector.Detection, rng.Intn(40))
		for i := range dets {
			dets[i] = det(names[rng.Intn(len(names))], rng.Float64())
		}

		prev := Aggregate(dets, 0)
		for _, th := range []float64{0.1, 0.25, 0.5, 0.7, 0.8, 1} {
			cur := Aggregate(dets, th)
			for l, n := range cur {
				assert.LessOrEqual(t, n, prev[l], "label %s at threshold %v", l, th)
			}
			prev = cur
		}
	}
}

func TestCounts(t *testing.T) {
	c := Counts{labels.Can: 2, labels.Bottle: 3, labels.Pepsi: 1}
	assert.Equal(t, 6, c.Total())
	assert.Equal(t, []labels.Label{labels.Bottle, labels.Can, labels.Pepsi}, c.Labels())
	assert.Equal(t, Counts{labels.Pepsi: 1}, c.Without(labels.Bottle, labels.Can))
	assert.Len(t, c, 3)

	clone := c.Clone()
	clone[labels.Can] = 9
	assert.Equal(t, 2, c[labels.Can])
	assert.NotNil(t, Counts(nil).Clone())

	assert.NoError(t, c.Validate())
	assert.Error(t, Counts{labels.Can: -1}.Validate())
	assert.Error(t, Counts{"": 1}.Validate())
}
