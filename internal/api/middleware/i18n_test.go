package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translate(t *testing.T, target, acceptLanguage string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	translator, err := NewTranslator("en")
	require.NoError(t, err)

	router := gin.New()
	router.Use(I18n(translator))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, T(c, "operation_not_found", map[string]interface{}{"ID": "op-1"}))
	})

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if acceptLanguage != "" {
		req.Header.Set("Accept-Language", acceptLanguage)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Body.String()
}

func TestI18n_LanguageSelection(t *testing.T) {
	assert.Equal(t, "Operation op-1 not found", translate(t, "/", ""))
	assert.Equal(t, "Operation op-1 nicht gefunden", translate(t, "/", "de-DE,de;q=0.9,en;q=0.8"))
	assert.Equal(t, "Operation op-1 not found", translate(t, "/?lang=en", "de"))
	assert.Equal(t, "Operation op-1 nicht gefunden", translate(t, "/?lang=de", ""))
	assert.Equal(t, "Operation op-1 not found", translate(t, "/?lang=fr", ""))
}

func TestT_WithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "queue_full", T(c, "queue_full", nil))
}

func TestNewTranslator_InvalidDefault(t *testing.T) {
	_, err := NewTranslator("not a language")
	assert.Error(t, err)
}
