package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("invalid detection payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build validates raw detector output and shapes it into a Result. When the
// payload carries no total area, it is computed from the boxes with policy.
func Build(raw Raw, policy AreaPolicy) (Result, error) {
	if err := validate.Struct(raw); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	if math.IsNaN(raw.EstimatedVolume) || math.IsInf(raw.EstimatedVolume, 0) {
		return Result{}, fmt.Errorf("%w: estimatedVolume must be finite", ErrInvalid)
	}

	objects := make([]Object, 0, len(raw.Objects))
	for i, o := range raw.Objects {
		label := strings.TrimSpace(o.Class)
		if label == "" {
			return Result{}, fmt.Errorf("%w: detectedObjects[%d]: class is required", ErrInvalid, i)
		}
		box := BoundingBox{X: o.BBox[0], Y: o.BBox[1], Width: o.BBox[2], Height: o.BBox[3]}
		if !(box.Width > 0) || !(box.Height > 0) {
			return Result{}, fmt.Errorf("%w: detectedObjects[%d]: bounding box must have positive width and height", ErrInvalid, i)
		}
		objects = append(objects, Object{ClassLabel: label, Confidence: o.Confidence, Box: box})
	}

	var area float64
	if raw.TotalWasteArea != nil {
		area = *raw.TotalWasteArea
		if math.IsNaN(area) || math.IsInf(area, 0) {
			return Result{}, fmt.Errorf("%w: totalWasteArea must be finite", ErrInvalid)
		}
	} else {
		if policy == "" {
			policy = AreaPolicyUnion
		}
		if !policy.Valid() {
			return Result{}, fmt.Errorf("unknown area policy %q", policy)
		}
		area = CoveredArea(objects, policy)
	}

	return Result{
		Objects:         objects,
		TotalWasteArea:  area,
		EstimatedVolume: raw.EstimatedVolume,
	}, nil
}

// Validate re-checks an already shaped Result, e.g. one decoded from storage
// or posted directly by a trusted pipeline.
func Validate(r Result) error {
	if !finiteNonNegative(r.TotalWasteArea) {
		return fmt.Errorf("%w: total_waste_area must be finite and non-negative", ErrInvalid)
	}
	if !finiteNonNegative(r.EstimatedVolume) {
		return fmt.Errorf("%w: estimated_volume must be finite and non-negative", ErrInvalid)
	}
	for i, o := range r.Objects {
		if strings.TrimSpace(o.ClassLabel) == "" {
			return fmt.Errorf("%w: detected_objects[%d]: class_label is required", ErrInvalid, i)
		}
		if !(o.Confidence >= 0 && o.Confidence <= 1) {
			return fmt.Errorf("%w: detected_objects[%d]: confidence %v outside [0,1]", ErrInvalid, i, o.Confidence)
		}
		if !(o.Box.Width > 0) || !(o.Box.Height > 0) || math.IsInf(o.Box.Area(), 0) || math.IsNaN(o.Box.X+o.Box.Y) || math.IsInf(o.Box.X+o.Box.Y, 0) {
			return fmt.Errorf("%w: detected_objects[%d]: bounding box must be finite with positive width and height", ErrInvalid, i)
		}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// CoveredArea returns the pixel area covered by the objects' boxes.
func CoveredArea(objects []Object, policy AreaPolicy) float64 {
	if policy == AreaPolicySum {
		var total float64
		for _, o := range objects {
			total += o.Box.Area()
		}
		return total
	}
	return unionArea(objects)
}

// unionArea uses coordinate compression; detections per image are few.
func unionArea(objects []Object) float64 {
	if len(objects) == 0 {
		return 0
	}
	xs := make([]float64, 0, 2*len(objects))
	ys := make([]float64, 0, 2*len(objects))
	for _, o := range objects {
		xs = append(xs, o.Box.X, o.Box.X+o.Box.Width)
		ys = append(ys, o.Box.Y, o.Box.Y+o.Box.Height)
	}
	xs = uniqueSorted(xs)
	ys = uniqueSorted(ys)

	var total float64
	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			cx := (xs[i] + xs[i+1]) / 2
			cy := (ys[j] + ys[j+1]) / 2
			for _, o := range objects {
				b := o.Box
				if cx > b.X && cx < b.X+b.Width && cy > b.Y && cy < b.Y+b.Height {
					total += (xs[i+1] - xs[i]) * (ys[j+1] - ys[j])
					break
				}
			}
		}
	}
	return total
}

func uniqueSorted(v []float64) []float64 {
	sort.Float64s(v)
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Raw.")
		switch fe.Tag() {
		case "gte", "lte":
			parts = append(parts, fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param()))
		case "len":
			parts = append(parts, fmt.Sprintf("%s must have %s values", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
