package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waste-patrol-service/internal/auth"
	"waste-patrol-service/internal/config"
	"waste-patrol-service/internal/domain/report"
)

func TestLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.LogConfig{Level: "nonsense"}, &buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := newWithWriter(config.LogConfig{Level: "info"}, &buf)

	r := gin.New()
	r.Use(Middleware(log))
	r.GET("/reports/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reports/abc", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "/reports/:id", line["path"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
}

func TestMiddlewareAttributesCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := newWithWriter(config.LogConfig{Level: "info"}, &buf)
	v := auth.NewVerifier("secret", "")

	r := gin.New()
	r.Use(Middleware(log))
	r.GET("/heatmap", v.Optional(), func(c *gin.Context) { c.Status(http.StatusOK) })

	token, err := v.Issue(report.Actor{UserID: "officer-1", Role: report.RoleAuthority}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/heatmap", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "officer-1", line["user_id"])
	assert.Equal(t, "authority", line["role"])

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/heatmap", nil))
	line = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "user_id")
}
