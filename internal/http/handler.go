package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"waste-patrol-service/internal/auth"
	"waste-patrol-service/internal/blobstore"
	"waste-patrol-service/internal/config"
	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
	"waste-patrol-service/internal/export"
	"waste-patrol-service/internal/heatmap"
	"waste-patrol-service/internal/service"
)

type Handler struct {
	reports     *service.ReportService
	submissions *service.SubmissionService
	blobs       blobstore.Store
	config      config.HTTPConfig
	log         zerolog.Logger
}

func NewHandler(
	reports *service.ReportService,
	submissions *service.SubmissionService,
	blobs blobstore.Store,
	cfg config.HTTPConfig,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		reports:     reports,
		submissions: submissions,
		blobs:       blobs,
		config:      cfg,
		log:         log,
	}
}

// Register mounts the API. optionalAuth runs on the public endpoints so a
// caller that does send a token is still attributed in request logs.
func (h *Handler) Register(r *gin.Engine, authMiddleware, optionalAuth gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	if optionalAuth != nil {
		public.Use(optionalAuth)
	}
	{
		public.GET("/heatmap", h.getHeatmap)
		public.GET("/heatmap/geojson", h.getHeatmapGeoJSON)
		public.GET("/reports/public", h.listPublicReports)
		public.GET("/stats/public", h.getPublicStats)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/reports", h.createReport)
		protected.POST("/reports/submit", h.submitReport)
		protected.GET("/reports", h.listReports)
		protected.GET("/reports/export", h.exportReports)
		protected.GET("/reports/:id", h.getReport)
		protected.POST("/reports/:id/detection", h.attachDetection)
		protected.PATCH("/reports/:id/status", h.transitionReport)
		protected.PATCH("/reports/:id/priority", h.setPriority)
		protected.DELETE("/reports/:id", h.deleteReport)
		protected.GET("/stats", h.getStats)
	}
}

type imagesResponse struct {
	report.ImageRefs
	OriginalURL  string `json:"original_image_url,omitempty"`
	ProcessedURL string `json:"processed_image_url,omitempty"`
}

// reportResponse is a report with retrieval URLs resolved for its images.
type reportResponse struct {
	*report.Report
	Images imagesResponse `json:"images"`
}

type submitResponse struct {
	Report         reportResponse `json:"report"`
	DetectionError string         `json:"detection_error,omitempty"`
}

func (h *Handler) present(r *report.Report) reportResponse {
	out := reportResponse{Report: r, Images: imagesResponse{ImageRefs: r.Images}}
	if h.blobs == nil {
		return out
	}
	if r.Images.Original != "" {
		out.Images.OriginalURL = h.blobs.URL(r.Images.Original)
	}
	if r.Images.Processed != "" {
		out.Images.ProcessedURL = h.blobs.URL(r.Images.Processed)
	}
	return out
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

func (l locationRequest) toDomain() *report.Location {
	if l.Latitude == nil || l.Longitude == nil {
		return nil
	}
	return &report.Location{Latitude: *l.Latitude, Longitude: *l.Longitude, Address: l.Address}
}

type createReportRequest struct {
	locationRequest
	OriginalImageRef  string `json:"original_image_ref"`
	ProcessedImageRef string `json:"processed_image_ref"`
	HideFromPublic    bool   `json:"hide_from_public"`
}

func (h *Handler) createReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	r, err := h.reports.Create(c.Request.Context(), service.CreateInput{
		SubmitterID: actor.UserID,
		Location:    req.toDomain(),
		Images: report.ImageRefs{
			Original:  strings.TrimSpace(req.OriginalImageRef),
			Processed: strings.TrimSpace(req.ProcessedImageRef),
		},
		HideFromPublic: req.HideFromPublic,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(h.present(r)))
}

func (h *Handler) submitReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	if h.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes)
	}
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to read image"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, errorResponse("only image uploads are allowed"))
		return
	}

	loc, err := formLocation(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	hide, _ := strconv.ParseBool(c.PostForm("hide_from_public"))

	res, err := h.submissions.Submit(c.Request.Context(), service.SubmitInput{
		Actor:          actor,
		Location:       loc,
		Image:          data,
		ContentType:    contentType,
		HideFromPublic: hide,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(submitResponse{
		Report:         h.present(res.Report),
		DetectionError: res.DetectionError,
	}))
}

func formLocation(c *gin.Context) (*report.Location, error) {
	latRaw, lngRaw := strings.TrimSpace(c.PostForm("latitude")), strings.TrimSpace(c.PostForm("longitude"))
	if latRaw == "" || lngRaw == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}
	return &report.Location{Latitude: lat, Longitude: lng, Address: strings.TrimSpace(c.PostForm("address"))}, nil
}

func (h *Handler) listReports(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	q, err := listQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	reports, err := h.reports.List(c.Request.Context(), q, actor)
	if err != nil {
		h.handleError(c, err)
		return
	}
	out := make([]reportResponse, len(reports))
	for i := range reports {
		out[i] = h.present(&reports[i])
	}
	c.JSON(http.StatusOK, successResponse(out))
}

func (h *Handler) listPublicReports(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	q.SubmitterID = ""

	reports, err := h.reports.ListPublic(c.Request.Context(), q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(reports))
}

func (h *Handler) getReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	r, err := h.reports.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.present(r)))
}

// attachDetection accepts detector output posted by the processing pipeline,
// which authenticates with an authority token.
func (h *Handler) attachDetection(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	if !actor.IsAuthority() {
		c.JSON(http.StatusForbidden, errorResponse("only authorities can attach detections"))
		return
	}

	var raw detection.Raw
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	r, err := h.reports.AttachRawDetection(c.Request.Context(), c.Param("id"), raw)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.present(r)))
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) transitionReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	status, err := report.ParseStatus(req.Status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	r, err := h.reports.Transition(c.Request.Context(), c.Param("id"), status, actor)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.present(r)))
}

type priorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

func (h *Handler) setPriority(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	priority, err := report.ParsePriority(req.Priority)
	if err != nil {
		h.handleError(c, err)
		return
	}

	r, err := h.reports.SetPriority(c.Request.Context(), c.Param("id"), priority, actor)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.present(r)))
}

func (h *Handler) deleteReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	if err := h.reports.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getHeatmap(c *gin.Context) {
	bound, err := boundQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	seq, err := h.reports.Heatmap(c.Request.Context(), bound)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(heatmap.Collect(seq)))
}

func (h *Handler) getHeatmapGeoJSON(c *gin.Context) {
	bound, err := boundQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	seq, err := h.reports.Heatmap(c.Request.Context(), bound)
	if err != nil {
		h.handleError(c, err)
		return
	}
	body, err := heatmap.FeatureCollection(seq).MarshalJSON()
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

func (h *Handler) getStats(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	scope := service.StatsScope{}
	switch c.DefaultQuery("scope", "") {
	case "mine":
		scope.SubmitterID = actor.UserID
	case "", "all":
		if !actor.IsAuthority() {
			scope.SubmitterID = actor.UserID
		}
	default:
		c.JSON(http.StatusBadRequest, errorResponse("scope must be mine or all"))
		return
	}

	summary, err := h.reports.Statistics(c.Request.Context(), scope)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) getPublicStats(c *gin.Context) {
	summary, err := h.reports.Statistics(c.Request.Context(), service.StatsScope{Public: true})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) exportReports(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	q, err := listQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	reports, err := h.reports.Export(c.Request.Context(), q, actor)
	if err != nil {
		h.handleError(c, err)
		return
	}
	now := time.Now()
	buf, err := export.Reports(reports, now)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.Filename(now)))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func listQuery(c *gin.Context) (service.ListQuery, error) {
	q := service.ListQuery{
		SubmitterID: strings.TrimSpace(c.Query("submitter_id")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := report.ParseStatus(strings.TrimSpace(s))
			if err != nil {
				return q, err
			}
			q.Statuses = append(q.Statuses, status)
		}
	}
	if raw := c.Query("has_waste"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("invalid has_waste: %w", err)
		}
		q.HasWaste = v
	}

	bound, err := boundQuery(c)
	if err != nil {
		return q, err
	}
	q.Bound = bound

	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			q.Offset = parsed
		}
	}
	return q, nil
}

func boundQuery(c *gin.Context) (*orb.Bound, error) {
	raw := strings.TrimSpace(c.Query("bbox"))
	if raw == "" {
		return nil, nil
	}
	minLng, minLat, maxLng, maxLat, err := parseBbox(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid bbox: %w", err)
	}
	return &orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}, nil
}

// parseBbox reads "minLng,minLat,maxLng,maxLat".
func parseBbox(s string) (minLng, minLat, maxLng, maxLat float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("need 4 numbers")
	}
	parse := func(i int) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(parts[i]), 64) }
	if minLng, err = parse(0); err != nil {
		return
	}
	if minLat, err = parse(1); err != nil {
		return
	}
	if maxLng, err = parse(2); err != nil {
		return
	}
	if maxLat, err = parse(3); err != nil {
		return
	}
	if maxLng < minLng || maxLat < minLat {
		return 0, 0, 0, 0, fmt.Errorf("max must be >= min")
	}
	return
}

func actorOrAbort(c *gin.Context) (report.Actor, bool) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("authentication required"))
		return report.Actor{}, false
	}
	return actor, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, report.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, report.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, report.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, report.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, report.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
