package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/acadhub/curricula-api/internal/service"
)

func TestMetricsCollapsesUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metricsSvc := service.NewMetricsService()

	router := gin.New()
	router.Use(Metrics(metricsSvc))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/health", "/no/such/route", "/another/miss"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	}

	recorder := httptest.NewRecorder()
	metricsSvc.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := recorder.Body.String()

	require.Contains(t, body, `path="/health"`)
	require.Contains(t, body, `path="unmatched"`)
	require.NotContains(t, body, `path="/no/such/route"`)
}
