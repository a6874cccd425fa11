package heatmap

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
)

func rep(lat, lng float64, det *detection.Result) report.Report {
	return report.Report{
		ID:        "r",
		Location:  &report.Location{Latitude: lat, Longitude: lng},
		Detection: det,
		Status:    report.StatusPending,
	}
}

func TestAggregate(t *testing.T) {
	reports := []report.Report{
		rep(23.8103, 90.4125, &detection.Result{TotalWasteArea: 150, EstimatedVolume: 2.5}),
		rep(23.8203, 90.4225, &detection.Result{TotalWasteArea: 300, EstimatedVolume: 4.2}),
		rep(1, 1, nil),
		rep(2, 2, &detection.Result{TotalWasteArea: 0, EstimatedVolume: 3}),
		rep(3, 3, &detection.Result{TotalWasteArea: -5, EstimatedVolume: 3}),
		{ID: "no-location", Detection: &detection.Result{TotalWasteArea: 10, EstimatedVolume: 1}},
		rep(4, 4, &detection.Result{TotalWasteArea: 10, EstimatedVolume: 12}),
		rep(5, 5, &detection.Result{TotalWasteArea: 10, EstimatedVolume: 0}),
	}

	samples := Collect(Aggregate(reports))
	require.Len(t, samples, 4)
	assert.Equal(t, Sample{Latitude: 23.8103, Longitude: 90.4125, Intensity: 0.5}, samples[0])
	assert.InDelta(t, 0.84, samples[1].Intensity, 1e-9)
	assert.Equal(t, 1.0, samples[2].Intensity)
	assert.Equal(t, 0.0, samples[3].Intensity)
}

func TestAggregateIsRestartable(t *testing.T) {
	reports := []report.Report{
		rep(1, 1, &detection.Result{TotalWasteArea: 1, EstimatedVolume: 1}),
		rep(2, 2, &detection.Result{TotalWasteArea: 1, EstimatedVolume: 2}),
	}
	seq := Aggregate(reports)
	first := Collect(seq)
	second := Collect(seq)
	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, reports[0].Detection.EstimatedVolume)

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestAggregateWithinBound(t *testing.T) {
	reports := []report.Report{
		rep(23.8103, 90.4125, &detection.Result{TotalWasteArea: 1, EstimatedVolume: 1}),
		rep(51.5, -0.12, &detection.Result{TotalWasteArea: 1, EstimatedVolume: 1}),
	}
	dhaka := orb.Bound{Min: orb.Point{90.3, 23.7}, Max: orb.Point{90.5, 23.9}}
	samples := Collect(Aggregate(reports, WithinBound(dhaka)))
	require.Len(t, samples, 1)
	assert.Equal(t, 23.8103, samples[0].Latitude)
}

func TestIntensity(t *testing.T) {
	assert.Equal(t, 0.0, Intensity(0))
	assert.Equal(t, 0.0, Intensity(-1))
	assert.Equal(t, 1.0, Intensity(IntensityCap))
	assert.Equal(t, 1.0, Intensity(1000))
	assert.Equal(t, 0.5, Intensity(2.5))
}

func TestFeatureCollection(t *testing.T) {
	reports := []report.Report{rep(23.8103, 90.4125, &detection.Result{TotalWasteArea: 150, EstimatedVolume: 2.5})}
	fc := FeatureCollection(Aggregate(reports))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{90.4125, 23.8103}, fc.Features[0].Geometry)
	assert.Equal(t, 0.5, fc.Features[0].Properties["intensity"])

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"FeatureCollection"`)
}

func TestCollectEmpty(t *testing.T) {
	out := Collect(Aggregate(nil))
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
