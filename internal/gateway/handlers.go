// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/secret"
)

type handler struct {
	svc     Service
	maxBody int64
}

type indexResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

type securityResponse struct {
	Success  bool          `json:"success"`
	Security securityBlock `json:"security"`
	Stats    statsBlock    `json:"stats"`
}

type securityBlock struct {
	Backend  string `json:"backend"`
	Location string `json:"location,omitempty"`
	Volatile bool   `json:"volatile"`
	Cipher   string `json:"cipher"`
}

type statsBlock struct {
	ActiveSessions  int `json:"activeSessions"`
	Secrets         int `json:"secrets"`
	PendingExpiries int `json:"pendingExpiries"`
}

type createSessionRequest struct {
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type sessionView struct {
	ID      string    `json:"id"`
	UserID  string    `json:"userId"`
	Data    any       `json:"data"`
	Created time.Time `json:"created"`
}

type sessionResponse struct {
	Success bool        `json:"success"`
	Session sessionView `json:"session"`
}

type storeSecretRequest struct {
	Name  string          `json:"name"`
	Value string          `json:"value"`
	TTL   json.RawMessage `json:"ttl"`
}

type storeSecretResponse struct {
	Success  bool   `json:"success"`
	SecretID string `json:"secretId"`
	Message  string `json:"message"`
	TTL      int64  `json:"ttl,omitempty"`
}

type secretView struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Value   *string   `json:"value,omitempty"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
	Status  string    `json:"status"`
}

type listResponse struct {
	Success bool         `json:"success"`
	Secrets []secretView `json:"secrets"`
	Count   int          `json:"count"`
}

type secretResponse struct {
	Success bool       `json:"success"`
	Secret  secretView `json:"secret"`
}

type okResponse struct {
	Success bool `json:"success"`
}

func (h *handler) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{
		Message: "tmpvault: ephemeral secret and session store",
		Endpoints: map[string]string{
			"POST /session":        "Create a session",
			"GET /session/{id}":    "Get session data",
			"DELETE /session/{id}": "Delete a session",
			"POST /secret":         "Store a temporary secret",
			"GET /secrets":         "List secrets (metadata only)",
			"GET /secret/{id}":     "Read a secret",
			"DELETE /secret/{id}":  "Delete a secret",
			"GET /security-info":   "Storage information",
		},
	})
}

func (h *handler) securityInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.SecurityInfo(r.Context())
	if err != nil {
		fail(w, r, "reading security info", err)
		return
	}
	writeJSON(w, http.StatusOK, securityResponse{
		Success: true,
		Security: securityBlock{
			Backend:  info.Backend,
			Location: info.Location,
			Volatile: info.Volatile,
			Cipher:   info.Cipher,
		},
		Stats: statsBlock{
			ActiveSessions:  info.ActiveSessions,
			Secrets:         info.Secrets,
			PendingExpiries: info.PendingExpiries,
		},
	})
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		fail(w, r, "creating session", err)
		return
	}

	var payload []byte
	if len(req.Data) > 0 && !bytes.Equal(req.Data, []byte("null")) {
		payload = req.Data
	}

	id, err := h.svc.CreateSession(r.Context(), req.UserID, payload)
	if err != nil {
		fail(w, r, "creating session", err)
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{
		Success:   true,
		SessionID: id,
		Message:   "Secure session created",
	})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "reading session", err)
		return
	}

	// Payloads stored in process may not be JSON, those go out as strings
	var data any
	switch {
	case len(sess.Payload) == 0:
	case json.Valid(sess.Payload):
		data = json.RawMessage(sess.Payload)
	default:
		data = string(sess.Payload)
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Success: true,
		Session: sessionView{
			ID:      sess.ID,
			UserID:  sess.UserID,
			Data:    data,
			Created: sess.CreatedAt,
		},
	})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "deleting session", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// parseTTL reads the optional ttl field. When present it must be a positive
// whole number of seconds.
func parseTTL(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	ttl, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil || ttl <= 0 {
		return 0, common.Errorf(common.ErrInvalidArgument, "ttl must be a positive integer, got %s", raw)
	}
	return ttl, nil
}

func (h *handler) storeSecret(w http.ResponseWriter, r *http.Request) {
	var req storeSecretRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		fail(w, r, "storing secret", err)
		return
	}

	ttl, err := parseTTL(req.TTL)
	if err != nil {
		fail(w, r, "storing secret", err)
		return
	}

	id, err := h.svc.StoreSecret(r.Context(), req.Name, []byte(req.Value), ttl)
	if err != nil {
		fail(w, r, "storing secret", err)
		return
	}
	writeJSON(w, http.StatusOK, storeSecretResponse{
		Success:  true,
		SecretID: id,
		Message:  "Secret stored",
		TTL:      ttl,
	})
}

func infoView(info *secret.Info) secretView {
	return secretView{
		ID:      info.ID,
		Name:    info.Name,
		Created: info.CreatedAt,
		Expires: info.ExpiresAt,
		Status:  info.Status,
	}
}

func (h *handler) listSecrets(w http.ResponseWriter, r *http.Request) {
	resp := listResponse{Success: true, Secrets: []secretView{}}
	for info, err := range h.svc.ListSecrets(r.Context()) {
		if err != nil {
			var recErr *secret.RecordError
			if errors.As(err, &recErr) {
				clog.FromContext(r.Context()).Warnf("skipping unreadable secret %s: %v", recErr.ID, recErr.Err)
				continue
			}
			fail(w, r, "listing secrets", err)
			return
		}
		resp.Secrets = append(resp.Secrets, infoView(&info))
	}
	resp.Count = len(resp.Secrets)
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getSecret(w http.ResponseWriter, r *http.Request) {
	sec, err := h.svc.GetSecret(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "reading secret", err)
		return
	}
	view := infoView(&sec.Info)
	value := string(sec.Value)
	view.Value = &value
	writeJSON(w, http.StatusOK, secretResponse{Success: true, Secret: view})
}

func (h *handler) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSecret(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "deleting secret", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
