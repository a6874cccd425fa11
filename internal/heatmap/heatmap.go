package heatmap

import (
	"iter"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"waste-patrol-service/internal/domain/report"
)

// IntensityCap is the estimated volume, in cubic meters, that maps to full
// intensity. Larger reports are clamped so one outlier does not saturate the map.
const IntensityCap = 5.0

type Sample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Intensity float64 `json:"intensity"`
}

type options struct {
	bound *orb.Bound
}

type Option func(*options)

// WithinBound keeps only samples whose point lies inside b.
func WithinBound(b orb.Bound) Option {
	return func(o *options) {
		o.bound = &b
	}
}

// Intensity normalizes an estimated volume into [0,1].
func Intensity(volume float64) float64 {
	if !(volume > 0) {
		return 0
	}
	return math.Min(volume, IntensityCap) / IntensityCap
}

// Aggregate turns reports into heatmap samples. Reports without a detection,
// without covered area or without coordinates are skipped. The sequence is
// computed lazily from reports on every iteration and does not modify them.
func Aggregate(reports []report.Report, opts ...Option) iter.Seq[Sample] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(yield func(Sample) bool) {
		for i := range reports {
			s, ok := sampleOf(&reports[i])
			if !ok {
				continue
			}
			if o.bound != nil && !o.bound.Contains(orb.Point{s.Longitude, s.Latitude}) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

func sampleOf(r *report.Report) (Sample, bool) {
	if r.Detection == nil || !(r.Detection.TotalWasteArea > 0) || r.Location == nil {
		return Sample{}, false
	}
	return Sample{
		Latitude:  r.Location.Latitude,
		Longitude: r.Location.Longitude,
		Intensity: Intensity(r.Detection.EstimatedVolume),
	}, true
}

// Collect drains seq into a slice, never nil.
func Collect(seq iter.Seq[Sample]) []Sample {
	out := make([]Sample, 0)
	for s := range seq {
		out = append(out, s)
	}
	return out
}

// FeatureCollection renders samples as GeoJSON points with an "intensity" property.
func FeatureCollection(seq iter.Seq[Sample]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for s := range seq {
		f := geojson.NewFeature(orb.Point{s.Longitude, s.Latitude})
		f.Properties["intensity"] = s.Intensity
		fc.Append(f)
	}
	return fc
}
