package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"dupegraph/internal/api"
	"dupegraph/internal/dupes"
	"dupegraph/internal/store"
)

const (
	defaultJSONMaxBody  = 1 << 20 // 1 MiB
	enqueueJSONMaxBody  = 8 << 20 // 8 MiB
	decisionJSONMaxBody = 4 << 20 // 4 MiB
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, api.CodeInvalidArgument, code, err)
}

func notFound(err error) error {
	return makeAPIError(http.StatusNotFound, api.CodeNotFound, ErrCodeFileNotFound, err)
}

func conflict(err error) error {
	return makeAPIError(http.StatusConflict, api.CodeConflict, ErrCodeConflict, err)
}

func invalidRelationship(err error) error {
	return makeAPIError(http.StatusUnprocessableEntity, api.CodeInvalidRelationship, ErrCodeInvalidRelationship, err)
}

func confirmationRequired(err error) error {
	return makeAPIError(http.StatusPreconditionRequired, api.CodeConfirmationRequired, ErrCodeConfirmationRequired, err)
}

func resourceExhausted(err error) error {
	return makeAPIError(http.StatusTooManyRequests, api.CodeResourceExhausted, ErrCodeResourceExhausted, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, api.CodeInternal, ErrCodeStoreFailure, err)
}

// domainError maps processor and store sentinels onto API errors.
func domainError(err error) error {
	switch {
	case errors.Is(err, dupes.ErrInvalidDecision):
		return badRequestCode(err, ErrCodeInvalidDecision)
	case errors.Is(err, store.ErrNotFound):
		return notFound(err)
	case errors.Is(err, store.ErrConflict):
		return conflict(err)
	case errors.Is(err, store.ErrInvalidRelationship):
		return invalidRelationship(err)
	case errors.Is(err, store.ErrCorrupt):
		return makeAPIError(http.StatusInternalServerError, api.CodeCorrupt, ErrCodeCorrupt, err)
	default:
		return storeFailure(err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return api.CodeInvalidArgument
	case http.StatusUnauthorized:
		return api.CodeUnauthorized
	case http.StatusForbidden:
		return api.CodeForbidden
	case http.StatusNotFound:
		return api.CodeNotFound
	case http.StatusConflict:
		return api.CodeConflict
	case http.StatusUnprocessableEntity:
		return api.CodeInvalidRelationship
	case http.StatusPreconditionRequired:
		return api.CodeConfirmationRequired
	case http.StatusTooManyRequests:
		return api.CodeResourceExhausted
	case http.StatusInternalServerError:
		return api.CodeInternal
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	maxBytes := defaultJSONMaxBody
	switch r.URL.Path {
	case "/v1/potentials":
		maxBytes = enqueueJSONMaxBody
	case "/v1/decisions":
		maxBytes = decisionJSONMaxBody
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeServiceError(w, r, domainError(err))
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func (s *Server) pathHashOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	hash, err := requirePathHash(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return "", false
	}
	return hash, true
}

func (s *Server) decodeHashesReq(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req struct {
		Hashes []string `json:"hashes"`
	}
	if !s.decodeJSONReq(w, r, &req) {
		return nil, false
	}
	hashes, err := requireHashes(req.Hashes)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return nil, false
	}
	return hashes, true
}

func queryIntDefault(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	if parsed < 0 {
		return 0, badRequestCode(fmt.Errorf("%s must be >= 0", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

func (s *Server) queryLimitReq(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	limit, err := queryIntDefault(r, "limit", def)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return 0, false
	}
	if limit == 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit, true
}

func confirmed(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Confirm")), "true")
}
