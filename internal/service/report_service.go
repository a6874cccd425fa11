package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"waste-patrol-service/internal/codegen"
	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
	"waste-patrol-service/internal/heatmap"
	"waste-patrol-service/internal/metrics"
	"waste-patrol-service/internal/repository"
	"waste-patrol-service/internal/stats"
)

const (
	defaultLimit = 50
	maxLimit     = 100

	codeAttempts = 5
)

// PublicPolicy decides which reports anonymous readers see.
type PublicPolicy string

const (
	PublicAll    PublicPolicy = "all"
	PublicOptOut PublicPolicy = "opt_out"
)

// BlobCleaner receives image keys of deleted reports.
type BlobCleaner interface {
	Enqueue(keys ...string)
}

type Options struct {
	Thresholds   report.SeverityThresholds
	AreaPolicy   detection.AreaPolicy
	PublicPolicy PublicPolicy
	Cleaner      BlobCleaner
	Metrics      *metrics.Collector
	Now          func() time.Time
}

type ReportService struct {
	store      repository.Store
	codes      codegen.Allocator
	thresholds report.SeverityThresholds
	areaPolicy detection.AreaPolicy
	public     PublicPolicy
	cleaner    BlobCleaner
	metrics    *metrics.Collector
	now        func() time.Time
	log        zerolog.Logger
}

func NewReportService(store repository.Store, codes codegen.Allocator, opts Options, log zerolog.Logger) *ReportService {
	s := &ReportService{
		store:      store,
		codes:      codes,
		thresholds: opts.Thresholds,
		areaPolicy: opts.AreaPolicy,
		public:     opts.PublicPolicy,
		cleaner:    opts.Cleaner,
		metrics:    opts.Metrics,
		now:        opts.Now,
		log:        log,
	}
	if s.thresholds == (report.SeverityThresholds{}) {
		s.thresholds = report.DefaultSeverityThresholds()
	}
	if s.areaPolicy == "" {
		s.areaPolicy = detection.AreaPolicyUnion
	}
	if s.public == "" {
		s.public = PublicOptOut
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateInput struct {
	SubmitterID    string
	Location       *report.Location
	Images         report.ImageRefs
	HideFromPublic bool
}

func (s *ReportService) Create(ctx context.Context, in CreateInput) (*report.Report, error) {
	r, err := report.New(in.SubmitterID, in.Location, in.Images, in.HideFromPublic, s.now())
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= codeAttempts; attempt++ {
		n, err := s.codes.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate report code: %w", err)
		}
		r.ID = uuid.NewString()
		r.Code = codegen.Format(n)

		err = s.store.Insert(ctx, r)
		if errors.Is(err, repository.ErrDuplicateCode) {
			s.log.Warn().
				Str("report_code", r.Code).
				Int("attempt", attempt).
				Msg("report code already taken, retrying")
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("submitter_id", r.SubmitterID).Msg("failed to create report")
			return nil, fmt.Errorf("failed to create report: %w", err)
		}

		s.metrics.ReportCreated()
		s.log.Info().
			Str("report_id", r.ID).
			Str("report_code", r.Code).
			Str("submitter_id", r.SubmitterID).
			Msg("report created")
		return r, nil
	}
	return nil, fmt.Errorf("%w: no free report code after %d attempts", report.ErrConflict, codeAttempts)
}

// AttachDetection records a detection result together with any waste types
// the detector reported on its own.
func (s *ReportService) AttachDetection(ctx context.Context, id string, res detection.Result, reportedTypes []string) (*report.Report, error) {
	return s.attach(ctx, id, func() (detection.Result, []string, error) {
		if err := detection.Validate(res); err != nil {
			return detection.Result{}, nil, err
		}
		return res, reportedTypes, nil
	})
}

// AttachRawDetection shapes detector output and attaches it.
func (s *ReportService) AttachRawDetection(ctx context.Context, id string, raw detection.Raw) (*report.Report, error) {
	return s.attach(ctx, id, func() (detection.Result, []string, error) {
		res, err := detection.Build(raw, s.areaPolicy)
		return res, raw.WasteTypes, err
	})
}

// attach checks existence and the at-most-once rule under the record lock
// before the payload is looked at, so a repeat attach is always a conflict.
func (s *ReportService) attach(ctx context.Context, id string, shape func() (detection.Result, []string, error)) (*report.Report, error) {
	var res detection.Result
	updated, err := s.store.Update(ctx, id, func(r *report.Report) error {
		if err := r.CanAttachDetection(); err != nil {
			return err
		}
		shaped, reportedTypes, err := shape()
		if err != nil {
			return fmt.Errorf("%w: %v", report.ErrValidation, err)
		}
		res = shaped
		return r.AttachDetection(res, detection.WasteTypes(res, reportedTypes), s.thresholds, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DetectionAttached(string(updated.Severity))
	s.log.Info().
		Str("report_id", updated.ID).
		Str("severity", string(updated.Severity)).
		Str("priority", string(updated.Priority)).
		Float64("total_waste_area", res.TotalWasteArea).
		Float64("estimated_volume", res.EstimatedVolume).
		Msg("detection attached")
	return updated, nil
}

func (s *ReportService) Transition(ctx context.Context, id string, to report.Status, actor report.Actor) (*report.Report, error) {
	if !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: only authorities can change report status", report.ErrForbidden)
	}

	var from report.Status
	updated, err := s.store.Update(ctx, id, func(r *report.Report) error {
		from = r.Status
		return r.Transition(to, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(from), string(to))
	s.log.Info().
		Str("report_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor_id", actor.UserID).
		Msg("report status changed")
	return updated, nil
}

func (s *ReportService) SetPriority(ctx context.Context, id string, p report.Priority, actor report.Actor) (*report.Report, error) {
	if !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: only authorities can change report priority", report.ErrForbidden)
	}
	updated, err := s.store.Update(ctx, id, func(r *report.Report) error {
		return r.OverridePriority(p, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("report_id", id).
		Str("priority", string(p)).
		Str("actor_id", actor.UserID).
		Msg("report priority overridden")
	return updated, nil
}

// Delete removes a pending report owned by actor. A missing report is
// reported as forbidden so callers cannot probe for ids.
func (s *ReportService) Delete(ctx context.Context, id string, actor report.Actor) error {
	deleted, err := s.store.Delete(ctx, id, func(r *report.Report) error {
		if !r.CanDelete(actor) {
			return fmt.Errorf("%w: report %s cannot be deleted (status %s)", report.ErrForbidden, r.Code, r.Status)
		}
		return nil
	})
	if errors.Is(err, report.ErrNotFound) {
		return fmt.Errorf("%w: report cannot be deleted", report.ErrForbidden)
	}
	if err != nil {
		return err
	}

	if s.cleaner != nil {
		s.cleaner.Enqueue(deleted.Images.Original, deleted.Images.Processed)
	}
	s.log.Info().
		Str("report_id", deleted.ID).
		Str("report_code", deleted.Code).
		Str("actor_id", actor.UserID).
		Msg("report deleted")
	return nil
}

// Get returns the report if actor may read it; otherwise it behaves as if
// the report did not exist.
func (s *ReportService) Get(ctx context.Context, id string, actor report.Actor) (*report.Report, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.VisibleTo(actor) {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}
	return r, nil
}

type ListQuery struct {
	SubmitterID string
	Statuses    []report.Status
	HasWaste    bool
	Bound       *orb.Bound
	Limit       int
	Offset      int
}

func clampPage(limit, offset int) repository.Page {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.Page{Limit: limit, Offset: offset}
}

// List returns reports visible to actor, newest first. Citizens only ever see
// their own submissions.
func (s *ReportService) List(ctx context.Context, q ListQuery, actor report.Actor) ([]report.Report, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous callers cannot list reports", report.ErrForbidden)
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", report.ErrValidation, st)
		}
	}
	f := repository.Filter{
		SubmitterID: q.SubmitterID,
		Statuses:    q.Statuses,
		HasWaste:    q.HasWaste,
		Bound:       q.Bound,
	}
	if !actor.IsAuthority() {
		f.SubmitterID = actor.UserID
	}
	return s.store.List(ctx, f, clampPage(q.Limit, q.Offset))
}

func (s *ReportService) publicFilter() repository.Filter {
	return repository.Filter{PublicOnly: s.public == PublicOptOut}
}

// ListPublic returns the anonymous view of reports, without submitter data.
func (s *ReportService) ListPublic(ctx context.Context, q ListQuery) ([]report.Summary, error) {
	f := s.publicFilter()
	f.Statuses = q.Statuses
	f.HasWaste = q.HasWaste
	f.Bound = q.Bound

	reports, err := s.store.List(ctx, f, clampPage(q.Limit, q.Offset))
	if err != nil {
		return nil, err
	}
	out := make([]report.Summary, 0, len(reports))
	for i := range reports {
		out = append(out, reports[i].Summary())
	}
	return out, nil
}

// Heatmap reads one snapshot of the waste-bearing reports and returns the
// lazy sample sequence over it.
func (s *ReportService) Heatmap(ctx context.Context, bound *orb.Bound) (iter.Seq[heatmap.Sample], error) {
	f := s.publicFilter()
	f.HasWaste = true

	reports, err := s.store.List(ctx, f, repository.Page{})
	if err != nil {
		return nil, err
	}
	var opts []heatmap.Option
	if bound != nil {
		opts = append(opts, heatmap.WithinBound(*bound))
	}
	return heatmap.Aggregate(reports, opts...), nil
}

// StatsScope selects the reports a summary covers. Public restricts to what
// anonymous readers may see.
type StatsScope struct {
	SubmitterID string
	Public      bool
}

func (s *ReportService) Statistics(ctx context.Context, scope StatsScope) (stats.Summary, error) {
	f := repository.Filter{SubmitterID: scope.SubmitterID}
	if scope.Public {
		f.PublicOnly = s.public == PublicOptOut
	}
	reports, err := s.store.List(ctx, f, repository.Page{})
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.Summarize(reports), nil
}

// Export returns every report matching q for the authority spreadsheet.
func (s *ReportService) Export(ctx context.Context, q ListQuery, actor report.Actor) ([]report.Report, error) {
	if !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: only authorities can export reports", report.ErrForbidden)
	}
	f := repository.Filter{
		SubmitterID: q.SubmitterID,
		Statuses:    q.Statuses,
		HasWaste:    q.HasWaste,
		Bound:       q.Bound,
	}
	return s.store.List(ctx, f, repository.Page{})
}
