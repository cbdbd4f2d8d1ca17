package statuspage

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestHandler_ListsRegisteredRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/connections/{id}", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodGet)
	r.HandleFunc("/status/endpoints", Handler(r)).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/status/endpoints", nil)
	w := httptest.NewRecorder()
	Handler(r).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "/health")
	assert.Contains(t, body, "/api/v1/connections/")
}
