package detection

// BoundingBox is in image pixel space: top-left corner plus size.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

type Object struct {
	ClassLabel string      `json:"class_label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bounding_box"`
}

// Result is the validated output of the detection service attached to a report.
type Result struct {
	Objects         []Object `json:"detected_objects"`
	TotalWasteArea  float64  `json:"total_waste_area"`
	EstimatedVolume float64  `json:"estimated_volume"`
}

// HasWaste reports whether the result carries any visual signal.
func (r Result) HasWaste() bool {
	return r.TotalWasteArea > 0
}

// RawObject mirrors one entry of the detector's JSON. BBox is [x, y, width, height].
type RawObject struct {
	Class      string    `json:"class" validate:"required"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
	BBox       []float64 `json:"bbox" validate:"len=4"`
}

// Raw is the unvalidated payload returned by the detection service.
type Raw struct {
	Objects         []RawObject `json:"detectedObjects" validate:"dive"`
	TotalWasteArea  *float64    `json:"totalWasteArea,omitempty" validate:"omitempty,gte=0"`
	EstimatedVolume float64     `json:"estimatedVolume" validate:"gte=0"`
	WasteTypes      []string    `json:"wasteTypes,omitempty"`

	// ProcessedFilename names the annotated image kept by the detector.
	ProcessedFilename string `json:"processedFilename,omitempty"`
}

type AreaPolicy string

const (
	// AreaPolicyUnion counts pixels covered by several boxes once.
	AreaPolicyUnion AreaPolicy = "union"
	// AreaPolicySum adds the individual box areas.
	AreaPolicySum AreaPolicy = "sum"
)

func (p AreaPolicy) Valid() bool {
	switch p {
	case AreaPolicyUnion, AreaPolicySum:
		return true
	}
	return false
}
