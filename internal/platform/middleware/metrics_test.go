package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	e.GET("/metrics", m.Handler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/abc", nil))
	}

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/patients/:id", "404"))
	assert.Equal(t, float64(3), got)

	m.IncRateLimitRejectionsTotal()
	m.IncAppointmentEvent("appointment.created")
	m.SetWebSocketClients(4)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitRejectionsTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.WebSocketClients))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "hms_http_requests_total"))
	assert.True(t, strings.Contains(body, `hms_appointment_events_total{type="appointment.created"} 1`))
}
