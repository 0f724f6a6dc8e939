package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStringArray(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"empty list", "[]", nil},
		{"null", "NULL", nil},
		{"single quoted", `['Turdus merula']`, []string{"Turdus merula"}},
		{"multiple", `['Turdus merula', 'Parus major']`, []string{"Turdus merula", "Parus major"}},
		{"double quotes", `["Erithacus rubecula", "Corvus corone"]`, []string{"Erithacus rubecula", "Corvus corone"}},
		{"curly quotes", "[“Turdus merula”, ‘Parus major’]", []string{"Turdus merula", "Parus major"}},
		{"bare scalar", "Cuculus canorus", []string{"Cuculus canorus"}},
		{"comma inside quotes", `['Anas sp., unidentified', 'Parus major']`, []string{"Anas sp., unidentified", "Parus major"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, parseStringArray(tc.in))
		})
	}
}

func TestParseFloatArray(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{0.91, 0.42}, parseFloatArray("[0.91, 0.42]"))
	assert.Equal(t, []float64{0.5}, parseFloatArray("0.5"))
	assert.Nil(t, parseFloatArray("[]"))
	// Garbage entries keep their slot so indexes stay aligned with species.
	assert.Equal(t, []float64{0.7, 0}, parseFloatArray("[0.7, n/a]"))
}

func TestSelectionCacheKeyDistinguishesSelections(t *testing.T) {
	t.Parallel()

	a := selectionCacheKey(Selection{Country: "Norway", DeviceID: "dev1", Species: "Turdus merula", MinConfidence: 0.5})
	b := selectionCacheKey(Selection{Country: "Norway", DeviceID: "dev1", Species: "Turdus merula", MinConfidence: 0.6})
	c := selectionCacheKey(Selection{Country: "Norway", DeviceID: "dev2", Species: "Turdus merula", MinConfidence: 0.5})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
