package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/aifocal/akidb/internal/akidberr"
)

// apiError is the wire shape of an error response.
type apiError struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusForKind maps the akidberr taxonomy to an HTTP status per §7: validation
// errors to 4xx, not-found to 404, service-busy to 503, permanent backend and
// corruption to 5xx with a stable code for telemetry correlation.
func statusForKind(k akidberr.Kind) (int, string) {
	switch k {
	case akidberr.Validation:
		return http.StatusBadRequest, "validation_error"
	case akidberr.NotFound:
		return http.StatusNotFound, "not_found"
	case akidberr.ServiceBusy:
		return http.StatusServiceUnavailable, "service_busy"
	case akidberr.ResourceExhausted:
		return http.StatusServiceUnavailable, "resource_exhausted"
	case akidberr.Corruption:
		return http.StatusInternalServerError, "corruption"
	case akidberr.PermanentBackend:
		return http.StatusInternalServerError, "permanent_backend_error"
	case akidberr.TransientBackend:
		return http.StatusInternalServerError, "transient_backend_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err through the §7 taxonomy and writes the JSON envelope.
// A NotFound error is expected caller behavior and is not logged; anything
// else is logged at error level with the request path for correlation.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := akidberr.KindOf(err)
	status, code := statusForKind(kind)
	if kind != akidberr.NotFound {
		s.logger.Error("apiserver: request failed", "path", r.URL.Path, "method", r.Method, "error", err)
	}
	writeJSON(w, status, apiError{Error: errorDetail{Code: code, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, target any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
