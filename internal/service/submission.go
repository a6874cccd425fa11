package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"waste-patrol-service/internal/blobstore"
	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
	"waste-patrol-service/internal/metrics"
)

// Detector analyses an image and returns the raw detection payload.
type Detector interface {
	Detect(ctx context.Context, image []byte, contentType string) (detection.Raw, error)
}

// SubmissionService runs the citizen upload flow around ReportService: the
// image goes to the blob store, then to the detector, and the report is
// created and filled with the detection. A detector failure still yields a
// pending report without detection.
type SubmissionService struct {
	reports  *ReportService
	blobs    blobstore.Store
	detector Detector
	metrics  *metrics.Collector
	log      zerolog.Logger
}

func NewSubmissionService(reports *ReportService, blobs blobstore.Store, detector Detector, m *metrics.Collector, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		reports:  reports,
		blobs:    blobs,
		detector: detector,
		metrics:  m,
		log:      log,
	}
}

type SubmitInput struct {
	Actor          report.Actor
	Location       *report.Location
	Image          []byte
	ContentType    string
	HideFromPublic bool
}

type SubmitResult struct {
	Report *report.Report `json:"report"`
	// DetectionError is set when the report was stored without detection.
	DetectionError string `json:"detection_error,omitempty"`
}

func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.Actor.UserID == "" {
		return nil, fmt.Errorf("%w: submitter is required", report.ErrValidation)
	}
	if len(in.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", report.ErrValidation)
	}
	if err := report.ValidateLocation(in.Location); err != nil {
		return nil, err
	}

	key, err := blobstore.Save(ctx, s.blobs, "reports/original", in.Image, in.ContentType)
	if err != nil {
		s.log.Error().Err(err).Str("submitter_id", in.Actor.UserID).Msg("failed to store report image")
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	raw, detectErr := s.detector.Detect(ctx, in.Image, in.ContentType)
	if detectErr != nil {
		s.metrics.DetectionFailed()
		s.log.Warn().Err(detectErr).Str("image_key", key).Msg("detection failed, storing report without detection")
	}

	images := report.ImageRefs{Original: key}
	if detectErr == nil {
		images.Processed = raw.ProcessedFilename
	}
	r, err := s.reports.Create(ctx, CreateInput{
		SubmitterID:    in.Actor.UserID,
		Location:       in.Location,
		Images:         images,
		HideFromPublic: in.HideFromPublic,
	})
	if err != nil {
		if s.reports.cleaner != nil {
			s.reports.cleaner.Enqueue(images.Original, images.Processed)
		}
		return nil, err
	}

	result := &SubmitResult{Report: r}
	if detectErr != nil {
		result.DetectionError = detectErr.Error()
		return result, nil
	}

	updated, err := s.reports.AttachRawDetection(ctx, r.ID, raw)
	switch {
	case err == nil:
		result.Report = updated
	case errors.Is(err, report.ErrValidation):
		s.metrics.DetectionFailed()
		s.log.Warn().Err(err).Str("report_id", r.ID).Msg("detector returned an invalid payload")
		result.DetectionError = err.Error()
	default:
		return nil, err
	}
	return result, nil
}
