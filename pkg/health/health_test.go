package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregates(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ComponentHealth
		want   Status
		code   int
	}{
		{"all up", map[string]ComponentHealth{"a": Up(""), "b": Up("")}, StatusUp, http.StatusOK},
		{"degraded stays ready", map[string]ComponentHealth{"a": Up(""), "cache": Degraded("no redis")}, StatusDegraded, http.StatusOK},
		{"down wins", map[string]ComponentHealth{"a": Degraded(""), "b": Down("gone")}, StatusDown, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, result := range tt.checks {
				c.Register(name, func(context.Context) ComponentHealth { return result })
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))

			rec := httptest.NewRecorder()
			c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.code, rec.Code)
			var body Report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
