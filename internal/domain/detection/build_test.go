package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestBuild(t *testing.T) {
	t.Run("KeepsReportedArea", func(t *testing.T) {
		res, err := Build(Raw{
			Objects: []RawObject{
				{Class: "plastic_bottle", Confidence: 0.85, BBox: []float64{100, 150, 200, 300}},
				{Class: "food_waste", Confidence: 0.92, BBox: []float64{300, 200, 400, 350}},
			},
			TotalWasteArea:  ptr(150),
			EstimatedVolume: 2.5,
		}, AreaPolicyUnion)
		require.NoError(t, err)
		assert.Len(t, res.Objects, 2)
		assert.Equal(t, 150.0, res.TotalWasteArea)
		assert.Equal(t, 2.5, res.EstimatedVolume)
		assert.Equal(t, BoundingBox{X: 100, Y: 150, Width: 200, Height: 300}, res.Objects[0].Box)
	})

	t.Run("EmptyObjectsAllowed", func(t *testing.T) {
		res, err := Build(Raw{EstimatedVolume: 0}, "")
		require.NoError(t, err)
		assert.Empty(t, res.Objects)
		assert.Zero(t, res.TotalWasteArea)
		assert.False(t, res.HasWaste())
	})

	tests := []struct {
		name string
		raw  Raw
	}{
		{"NegativeConfidence", Raw{Objects: []RawObject{{Class: "cardboard", Confidence: -0.1, BBox: []float64{0, 0, 1, 1}}}}},
		{"ConfidenceAboveOne", Raw{Objects: []RawObject{{Class: "cardboard", Confidence: 1.2, BBox: []float64{0, 0, 1, 1}}}}},
		{"ZeroWidth", Raw{Objects: []RawObject{{Class: "cardboard", Confidence: 0.5, BBox: []float64{0, 0, 0, 1}}}}},
		{"NegativeHeight", Raw{Objects: []RawObject{{Class: "cardboard", Confidence: 0.5, BBox: []float64{0, 0, 2, -1}}}}},
		{"ShortBox", Raw{Objects: []RawObject{{Class: "cardboard", Confidence: 0.5, BBox: []float64{0, 0, 2}}}}},
		{"MissingClass", Raw{Objects: []RawObject{{Class: "", Confidence: 0.5, BBox: []float64{0, 0, 2, 2}}}}},
		{"BlankClass", Raw{Objects: []RawObject{{Class: "   ", Confidence: 0.5, BBox: []float64{0, 0, 2, 2}}}}},
		{"NegativeArea", Raw{TotalWasteArea: ptr(-1)}},
		{"NegativeVolume", Raw{EstimatedVolume: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.raw, AreaPolicyUnion)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestCoveredArea(t *testing.T) {
	overlapping := []Object{
		{ClassLabel: "a", Confidence: 1, Box: BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}},
		{ClassLabel: "b", Confidence: 1, Box: BoundingBox{X: 5, Y: 5, Width: 10, Height: 10}},
	}

	assert.InDelta(t, 200.0, CoveredArea(overlapping, AreaPolicySum), 1e-9)
	assert.InDelta(t, 175.0, CoveredArea(overlapping, AreaPolicyUnion), 1e-9)

	nested := []Object{
		{ClassLabel: "a", Confidence: 1, Box: BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}},
		{ClassLabel: "b", Confidence: 1, Box: BoundingBox{X: 2, Y: 2, Width: 3, Height: 3}},
	}
	assert.InDelta(t, 100.0, CoveredArea(nested, AreaPolicyUnion), 1e-9)
	assert.Zero(t, CoveredArea(nil, AreaPolicyUnion))
}

func TestBuildDerivesAreaWhenMissing(t *testing.T) {
	raw := Raw{
		Objects: []RawObject{
			{Class: "a", Confidence: 0.5, BBox: []float64{0, 0, 10, 10}},
			{Class: "b", Confidence: 0.5, BBox: []float64{5, 5, 10, 10}},
		},
		EstimatedVolume: 1,
	}

	union, err := Build(raw, AreaPolicyUnion)
	require.NoError(t, err)
	assert.InDelta(t, 175.0, union.TotalWasteArea, 1e-9)

	sum, err := Build(raw, AreaPolicySum)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, sum.TotalWasteArea, 1e-9)

	_, err = Build(raw, AreaPolicy("max"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := Result{
		Objects:         []Object{{ClassLabel: "cardboard", Confidence: 0.78, Box: BoundingBox{Width: 1, Height: 1}}},
		TotalWasteArea:  300,
		EstimatedVolume: 4.2,
	}
	assert.NoError(t, Validate(good))

	bad := good
	bad.Objects = []Object{{ClassLabel: "cardboard", Confidence: 1.5, Box: BoundingBox{Width: 1, Height: 1}}}
	assert.ErrorIs(t, Validate(bad), ErrInvalid)

	for name, mutate := range map[string]func(*Result){
		"negative area":     func(r *Result) { r.TotalWasteArea = -1 },
		"infinite area":     func(r *Result) { r.TotalWasteArea = math.Inf(1) },
		"nan area":          func(r *Result) { r.TotalWasteArea = math.NaN() },
		"infinite volume":   func(r *Result) { r.EstimatedVolume = math.Inf(1) },
		"negative volume":   func(r *Result) { r.EstimatedVolume = math.Inf(-1) },
		"infinite box":      func(r *Result) { r.Objects = []Object{{ClassLabel: "x", Confidence: 0.5, Box: BoundingBox{Width: math.Inf(1), Height: 1}}} },
		"non-finite corner": func(r *Result) { r.Objects = []Object{{ClassLabel: "x", Confidence: 0.5, Box: BoundingBox{X: math.NaN(), Width: 1, Height: 1}}} },
	} {
		t.Run(name, func(t *testing.T) {
			bad := good
			mutate(&bad)
			assert.ErrorIs(t, Validate(bad), ErrInvalid)
		})
	}
}

func TestWasteTypes(t *testing.T) {
	res := Result{Objects: []Object{
		{ClassLabel: "plastic_bottle"},
		{ClassLabel: "food_waste"},
		{ClassLabel: "plastic_bag"},
	}}
	assert.Equal(t, []string{"organic", "plastic"}, WasteTypes(res, nil))
	assert.Equal(t, []string{"cardboard", "organic", "plastic"}, WasteTypes(res, []string{"Cardboard"}))
	assert.Equal(t, []string{"tyre"}, WasteTypes(Result{Objects: []Object{{ClassLabel: "tyre_pile"}}}, nil))
	assert.Empty(t, WasteTypes(Result{}, nil))
}
