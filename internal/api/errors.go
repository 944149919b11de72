package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pegpool/internal/pool"
)

var errBadRequest = errors.New("bad request")

func statusFor(kind pool.Kind) int {
	switch kind {
	case pool.KindAuthorization:
		return http.StatusForbidden
	case pool.KindInvalidArgument:
		return http.StatusBadRequest
	case pool.KindSlippageExceeded, pool.KindInsufficientLiquidity:
		return http.StatusConflict
	case pool.KindPaused:
		return http.StatusLocked
	case pool.KindStaleOracle:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// errorCode maps request decoding failures onto the pool's invalid-argument class.
func errorCode(err error) pool.Kind {
	if errors.Is(err, errBadRequest) {
		return pool.KindInvalidArgument
	}
	return pool.KindOf(err)
}

func writeJSONError(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(errorResponse{Code: code, Error: message})
	if marshalErr != nil {
		payload = []byte(`{"code":"INTERNAL","error":"internal error"}`)
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	payload, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, string(pool.KindInternal), fmt.Errorf("marshal response: %w", err))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
