// Copyright (c) 2025 BVK Chaitanya

package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/bvk/gridbot/exchange"
)

// maxRequestSize limits the size of json request bodies.
const maxRequestSize = 1 << 20

// StatusCode returns the http status code for an operation error.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, os.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, os.ErrExist):
		return http.StatusConflict
	case errors.Is(err, os.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, exchange.ErrInsufficientBalance):
		return http.StatusPreconditionFailed
	case exchange.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// HandlerFunc returns a http handler that decodes a json request of type REQ
// from POST request body, invokes the function and writes the json encoded
// response. Function errors are returned as plain text with a status code
// picked by StatusCode.
func HandlerFunc[REQ, RESP any](f func(context.Context, *REQ) (*RESP, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "only POST requests are supported", http.StatusMethodNotAllowed)
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
		if err != nil {
			http.Error(w, fmt.Sprintf("could not read request body: %v", err), http.StatusBadRequest)
			return
		}
		req := new(REQ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, req); err != nil {
				http.Error(w, fmt.Sprintf("could not decode request: %v", err), http.StatusBadRequest)
				return
			}
		}

		resp, err := f(r.Context(), req)
		if err != nil {
			slog.Warn("api request failed", "path", r.URL.Path, "err", err)
			http.Error(w, err.Error(), StatusCode(err))
			return
		}

		jsdata, err := json.Marshal(resp)
		if err != nil {
			slog.Error("could not encode api response", "path", r.URL.Path, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsdata)
	})
}
