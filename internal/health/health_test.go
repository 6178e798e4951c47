package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCheckAllAggregates(t *testing.T) {
	r := NewRegistry()
	r.Register("up", Ping("up"))
	r.Register("down", func(ctx context.Context) Status {
		return Status{Name: "down", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Len(t, statuses, 2)
}

func TestCheckAllEmptyRegistryIsHealthy(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := NewRegistry()
	r.Register("db", Ping("db"))

	router := gin.New()
	router.GET("/ready", r.Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	r.Register("gateway", func(ctx context.Context) Status {
		return Status{Name: "gateway", Healthy: false}
	})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
