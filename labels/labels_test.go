package labels

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabulary_Validate(t *testing.T) {
	strict := DrinkVocabulary()
	open := NewVocabulary(false, Bottle, Can)

	tests := []struct {
		name    string
		vocab   *Vocabulary
		label   Label
		wantErr error
	}{
		{"strict known", strict, Pepsi, nil},
		{"strict reserved", strict, Can, nil},
		{"strict unknown", strict, "fanta", ErrUnknownLabel},
		{"strict empty", strict, "", ErrEmptyLabel},
		{"open unknown", open, "fanta", nil},
		{"open empty", open, "", ErrEmptyLabel},
		{"nil vocabulary", nil, "anything", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.vocab.Validate(tt.label)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func TestVocabulary_Names(t *testing.T) {
	v := NewVocabulary(true, Pepsi, Bottle, "", Can)
	assert.Equal(t, []Label{Bottle, Can, Pepsi}, v.Names())
	assert.True(t, v.Contains(Pepsi))
	assert.False(t, v.Contains(CocaCola))
}

func TestClassSet_Name(t *testing.T) {
	name, err := DrinkClasses.Name(1)
	require.NoError(t, err)
	assert.Equal(t, Bottle, name)

	_, err = DrinkClasses.Name(-1)
	assert.Error(t, err)
	_, err = DrinkClasses.Name(DrinkClasses.Len())
	assert.Error(t, err)

	assert.Len(t, DrinkVocabulary().Names(), DrinkClasses.Len())
}

func TestDrinkClasses_Order(t *testing.T) {
	want := []Label{
		"beer_tiger", "bottle", "can", "cocacola", "cocacola_light", "green_tea",
		"pepsi", "red_bull", "revive_lemon_salt", "revive_regular", "strawberry_sting",
		"vinh_hao_water",
	}
	require.Equal(t, len(want), DrinkClasses.Len())
	for i, l := range want {
		name, err := DrinkClasses.Name(i)
		require.NoError(t, err)
		assert.Equal(t, l, name, "index %d", i)
	}

	strict := DrinkVocabulary()
	assert.NoError(t, strict.Validate(GreenTea))
	assert.NoError(t, strict.Validate(RedBull))
}
