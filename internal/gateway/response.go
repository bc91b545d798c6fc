// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/tmpvault/internal/common"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	json.NewEncoder(w).Encode(data) //nolint:errcheck,errchkjson
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch common.Kind(err) { //nolint:errorlint
	case common.ErrNotFound:
		return http.StatusNotFound
	case common.ErrUnauthorized:
		return http.StatusUnauthorized
	case common.ErrInvalidArgument:
		return http.StatusBadRequest
	case common.ErrStorage:
		return http.StatusServiceUnavailable
	case common.ErrDecryption:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Internal errors are logged and their
// message is not sent to the caller.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		clog.FromContext(r.Context()).Errorf("%s: %v", op, err)
		writeError(w, status, op+" failed")
		return
	}
	clog.FromContext(r.Context()).Debugf("%s: %v", op, err)
	writeError(w, status, err.Error())
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return common.Errorf(common.ErrInvalidArgument, "request body larger than %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return common.Errorf(common.ErrInvalidArgument, "request body is empty")
		default:
			return common.Errorf(common.ErrInvalidArgument, "decoding request body: %v", err)
		}
	}
	if dec.More() {
		return common.Errorf(common.ErrInvalidArgument, "request body has trailing data")
	}
	return nil
}
