// Package labels - Product categories reported by the drink detector.
package labels

import (
	"sort"

	"github.com/pkg/errors"
)

// Label identifies one product category.
type Label string

// Reserved container categories. Their totals are expected to cover every
// finer-grained beverage label.
const (
	Bottle Label = "bottle"
	Can    Label = "can"
)

// Beverage labels the drink model was trained on.
const (
	CocaCola        Label = "cocacola"
	CocaColaLight   Label = "cocacola_light"
	GreenTea        Label = "green_tea"
	Pepsi           Label = "pepsi"
	RedBull         Label = "red_bull"
	StrawberrySting Label = "strawberry_sting"
	VinhHaoWater    Label = "vinh_hao_water"
	BeerTiger       Label = "beer_tiger"
	ReviveLemonSalt Label = "revive_lemon_salt"
	ReviveRegular   Label = "revive_regular"
)

// ErrUnknownLabel is returned by a strict Vocabulary for labels outside of it.
var ErrUnknownLabel = errors.New("unknown label")

// ErrEmptyLabel is returned for the empty label, which no vocabulary accepts.
var ErrEmptyLabel = errors.New("empty label")

// Vocabulary is the set of labels accepted at the aggregation boundary.
type Vocabulary struct {
	// Strict rejects labels that are not in the set. An open vocabulary
	// accepts any non-empty label.
	Strict bool
	known  map[Label]struct{}
}

// NewVocabulary builds a vocabulary from names.
func NewVocabulary(strict bool, names ...Label) *Vocabulary {
	v := &Vocabulary{Strict: strict, known: make(map[Label]struct{}, len(names))}
	for _, n := range names {
		if n != "" {
			v.known[n] = struct{}{}
		}
	}
	return v
}

// DrinkVocabulary returns the strict vocabulary of the drink model.
func DrinkVocabulary() *Vocabulary {
	return NewVocabulary(true, DrinkClasses.Labels()...)
}

// Contains reports whether l is a known label.
func (v *Vocabulary) Contains(l Label) bool {
	if v == nil {
		return false
	}
	_, ok := v.known[l]
	return ok
}

// Validate checks l against the vocabulary.
//
// Arguments:
//   - l: The label to validate.
//
// Returns:
//   - error: ErrEmptyLabel or ErrUnknownLabel (wrapped with the label) when rejected.
func (v *Vocabulary) Validate(l Label) error {
	if l == "" {
		return ErrEmptyLabel
	}
	if v == nil || !v.Strict || v.Contains(l) {
		return nil
	}
	return errors.Wrapf(ErrUnknownLabel, "%q", l)
}

// Names returns the known labels in lexical order.
func (v *Vocabulary) Names() []Label {
	if v == nil {
		return nil
	}
	out := make([]Label, 0, len(v.known))
	for l := range v.known {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseLabels converts raw strings to labels.
func ParseLabels(names []string) []Label {
	out := make([]Label, 0, len(names))
	for _, n := range names {
		out = append(out, Label(n))
	}
	return out
}
