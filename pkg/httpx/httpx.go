// Package httpx holds the JSON request/response helpers shared by the HTTP
// surface.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TenantHeader identifies the tenant on every request. Authentication and
// tenant routing are external collaborators; the core trusts this header.
const TenantHeader = "X-Tenant-ID"

func NewRequestID() string { return "req_" + uuid.NewString() }

// Tenant extracts the tenant id from the request, empty when absent.
func Tenant(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TenantHeader))
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}
