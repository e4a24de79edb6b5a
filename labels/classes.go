package labels

import "fmt"

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The label.
	Name Label
}

// ClassSet ties a model's output indices to labels.
type ClassSet struct {
	// Classes that are supported and mappable, ordered by index.
	Classes []OutputClass
}

// NewClassSet builds a zero-based class set from names in model output order.
func NewClassSet(names ...Label) ClassSet {
	classes := make([]OutputClass, len(names))
	for i, n := range names {
		classes[i] = OutputClass{Index: i, Name: n}
	}
	return ClassSet{Classes: classes}
}

// Name returns the label for a model output index.
func (s ClassSet) Name(idx int) (Label, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", fmt.Errorf("index %d out of range for %d classes", idx, len(s.Classes))
	}
	return s.Classes[idx].Name, nil
}

// Len returns the number of classes.
func (s ClassSet) Len() int {
	return len(s.Classes)
}

// Labels returns every label in index order.
func (s ClassSet) Labels() []Label {
	out := make([]Label, len(s.Classes))
	for i, c := range s.Classes {
		out[i] = c.Name
	}
	return out
}

// DrinkClasses is the class order of the drink YOLO model.
var DrinkClasses = NewClassSet(
	BeerTiger,
	Bottle,
	Can,
	CocaCola,
	CocaColaLight,
	GreenTea,
	Pepsi,
	RedBull,
	ReviveLemonSalt,
	ReviveRegular,
	StrawberrySting,
	VinhHaoWater,
)
