package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/schemahost/internal/fault"
)

// Codes for request problems that never reach the engine.
const (
	CodeBadRequest      = "BadRequest"
	CodeUnauthenticated = "Unauthenticated"
	CodeReplayed        = "Replayed"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON error envelope: {"error": {"code", "message"}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, Details: details}})
}

// writeFault writes an engine error with the status for its kind.
func writeFault(w http.ResponseWriter, err error, details any) {
	fe := fault.As(err)
	writeError(w, StatusFor(fe.Kind), string(fe.Kind), fe.Error(), details)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.UnknownSchema, fault.ProcedureNotFound:
		return http.StatusNotFound
	case fault.SignatureMismatch:
		return http.StatusBadRequest
	case fault.Unauthorized, fault.NotExternallyCallable:
		return http.StatusForbidden
	case fault.DuplicateSchema, fault.ApplicationError, fault.MutationInViewContext:
		return http.StatusConflict
	case fault.IncompatibleForeignSignature, fault.MaxCallDepthExceeded, fault.InvalidSchema:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
