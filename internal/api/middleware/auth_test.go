package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(cfg AuthConfig) *gin.Engine {
		r := gin.New()
		r.Use(APIKeyAuth(cfg, nil))
		r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		return r
	}

	tests := []struct {
		name   string
		cfg    AuthConfig
		header map[string]string
		want   int
	}{
		{"未启用认证", AuthConfig{}, nil, http.StatusOK},
		{"缺少key", AuthConfig{Enabled: true, APIKeys: []string{"k1"}}, nil, http.StatusUnauthorized},
		{"X-API-Key有效", AuthConfig{Enabled: true, APIKeys: []string{"k1"}}, map[string]string{"X-API-Key": "k1"}, http.StatusOK},
		{"Bearer有效", AuthConfig{Enabled: true, APIKeys: []string{"k1", "k2"}}, map[string]string{"Authorization": "Bearer k2"}, http.StatusOK},
		{"无效key", AuthConfig{Enabled: true, APIKeys: []string{"k1"}}, map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			newRouter(tt.cfg).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_l****wxyz", maskAPIKey("sk_live_abcdwxyz"))
}
