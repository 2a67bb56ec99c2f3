// Package middleware wraps an http.Handler with admission control
// driven by the service dispatch layer.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mkarlsen/throttle/service"
)

var _ http.Handler = &rateLimitHandler{}

const (
	headerLimit      = "X-Ratelimit-Limit"
	headerRemaining  = "X-Ratelimit-Remaining"
	headerRetryAfter = "X-Ratelimit-Retry-After"
)

// Extractor builds the rate limiting identifier from an HTTP request.
// Use values guaranteed to be unique per client; the extractor must not
// read the request body.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type headerExtractor struct {
	headers []string
}

// NewHeaderExtractor creates an Extractor joining the given header
// values into the identifier.
func NewHeaderExtractor(headers ...string) Extractor {
	return &headerExtractor{headers: headers}
}

func (h *headerExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))
	for _, key := range h.headers {
		value := strings.TrimSpace(r.Header.Get(key))
		if value == "" {
			return "", fmt.Errorf("header %v must have a value set", key)
		}
		values = append(values, value)
	}
	return strings.Join(values, "-"), nil
}

// Config wires the rate limiting handler.
type Config struct {
	Extractor Extractor
	Service   *service.Service

	// Operation names the service operation to run per request;
	// defaults to token_bucket.
	Operation string

	// Params are the base limiter parameters. The identifier is filled
	// in per request and must not be set here.
	Params service.Params
}

type rateLimitHandler struct {
	handler http.Handler
	config  *Config
}

// NewHandler wraps an existing http.Handler, performing an admission
// check before forwarding. Denied requests receive 429 and never reach
// the wrapped handler.
func NewHandler(next http.Handler, config *Config) http.Handler {
	if config.Operation == "" {
		config.Operation = "token_bucket"
	}
	return &rateLimitHandler{handler: next, config: config}
}

func (h *rateLimitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, err := h.config.Extractor.Extract(r)
	if err != nil {
		h.writeResponse(w, http.StatusBadRequest, "failed to collect rate limiting key from request: %v", err)
		return
	}

	params := service.Params{}
	for k, v := range h.config.Params {
		params[k] = v
	}
	params["identifier"] = key

	resp := h.config.Service.Execute(h.config.Operation, params)
	if resp.Status != "success" {
		h.writeResponse(w, http.StatusInternalServerError, "failed to run rate limiting for request: %v", resp.Error)
		return
	}

	w.Header().Set(headerLimit, fmt.Sprintf("%v", resp.Result["limit"]))
	w.Header().Set(headerRemaining, fmt.Sprintf("%v", resp.Result["remaining"]))
	w.Header().Set(headerRetryAfter, fmt.Sprintf("%v", resp.Result["retry_after"]))

	if allowed, _ := resp.Result["allowed"].(bool); !allowed {
		h.writeResponse(w, http.StatusTooManyRequests, "you have sent too many requests to this service, slow down please")
		return
	}

	h.handler.ServeHTTP(w, r)
}

func (h *rateLimitHandler) writeResponse(w http.ResponseWriter, status int, msg string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		fmt.Printf("failed to write body to HTTP request: %v", err)
	}
}
