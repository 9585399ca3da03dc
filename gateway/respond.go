package gateway

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/flowbridge"
)

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack delegates to the underlying writer so websocket upgrades work
// through instrumented routes.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// requestID extracts the caller's trace ID or mints a new one
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// route wraps a handler with method filtering, trace ID propagation and
// request metrics.
func (s *Server) route(name, method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", requestID(r))

		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(recorder, r)

		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(name, method, strconv.Itoa(recorder.status)).Inc()
			s.metrics.RequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}

// writeJSON renders a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

// writeText renders a plain text response
func (s *Server) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

// writeError maps a classified error onto an HTTP status and a message safe
// to hand to the caller, and logs the full chain.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	s.logger.Warn("request failed",
		"path", r.URL.Path,
		"status", status,
		"error", err)

	if s.metrics != nil {
		s.metrics.ErrorsTotal.WithLabelValues("gateway", errors.Classify(err).String()).Inc()
	}

	s.writeText(w, status, clientMessage(err))
}

// httpStatus maps error classes onto statuses: caller mistakes and node
// business rejections are 400, unreachable substrate 503, abandoned awaits
// 504, everything unrecoverable 500.
func httpStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	if errors.IsInvalid(err) {
		return http.StatusBadRequest
	}
	if stderrors.Is(err, errors.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	if stderrors.Is(err, errors.ErrFlowTimeout) {
		return http.StatusGatewayTimeout
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// clientMessage picks the message rendered to the caller. Node rejections
// are relayed verbatim; everything else collapses to a generic phrase so
// internals never leak.
func clientMessage(err error) string {
	if err == nil {
		return "internal server error"
	}

	var rejection *flowbridge.NodeRejection
	if stderrors.As(err, &rejection) {
		return rejection.Message
	}

	switch httpStatus(err) {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusGatewayTimeout:
		return "request timed out awaiting the ledger"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}
