package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMiddleware_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	before := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/ping", "2xx"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	after := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/ping", "2xx"))
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	before := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "4xx"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)

	after := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "4xx"))
	if after != before+1 {
		t.Fatalf("expected unmatched counter to increment, got %v -> %v", before, after)
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		201: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
	}
	for code, want := range cases {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
