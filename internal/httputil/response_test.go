package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Rate limit exceeded. Please try again later.", body["message"])
	assert.Equal(t, "Rate limit exceeded. Please try again later.", body["detail"])
	assert.Equal(t, float64(429), body["status"])
	assert.Equal(t, "Too Many Requests", body["title"])
}

func TestRespondErrorWithExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithExtras(rec, http.StatusConflict, "exists", map[string]interface{}{"resource_id": "c1"})

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c1", body["resource_id"])
	assert.Equal(t, false, body["success"])
}

func TestParseJSON(t *testing.T) {
	var dest struct {
		ID string `json:"id"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"c1"}`))
	require.NoError(t, ParseJSON(httptest.NewRecorder(), req, &dest))
	assert.Equal(t, "c1", dest.ID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorContains(t, ParseJSON(httptest.NewRecorder(), req, &dest), "invalid JSON")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.EqualError(t, ParseJSON(httptest.NewRecorder(), req, &dest), "request body is empty")

	big := `{"id":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	assert.ErrorContains(t, ParseJSON(httptest.NewRecorder(), req, &dest), "exceeds")
}
