// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"time"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/secret"
	"github.com/carabiner-dev/tmpvault/internal/session"
	"github.com/carabiner-dev/tmpvault/internal/vault"
	"github.com/carabiner-dev/tmpvault/options"
)

// MaxTTLSeconds is the largest ttl accepted over the wire.
const MaxTTLSeconds = options.MaxTTLSeconds

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// CreateSessionRequest carries the owner and opaque payload of a new session.
type CreateSessionRequest struct{ message }

func NewCreateSessionRequest(userID string, payload []byte) *CreateSessionRequest {
	m := newCreateSessionRequest()
	m.setString("user_id", userID)
	m.setBytes("payload", payload)
	return m
}

func newCreateSessionRequest() *CreateSessionRequest {
	return &CreateSessionRequest{newMessage("CreateSessionRequest")}
}

func (m *CreateSessionRequest) GetUserID() string { return m.getString("user_id") }

func (m *CreateSessionRequest) GetPayload() []byte { return m.getBytes("payload") }

// Session is a session view. The payload bytes are returned unchanged.
type Session struct{ message }

func SessionMessage(sess *session.Session) *Session {
	m := newSession()
	m.setString("id", sess.ID)
	m.setString("user_id", sess.UserID)
	m.setBytes("payload", sess.Payload)
	m.setInt("created_at_unix_nano", unixNano(sess.CreatedAt))
	return m
}

func newSession() *Session { return &Session{newMessage("Session")} }

// ToSession converts the message back into a session.
func (m *Session) ToSession() *session.Session {
	return &session.Session{
		ID:        m.getString("id"),
		UserID:    m.getString("user_id"),
		Payload:   m.getBytes("payload"),
		CreatedAt: fromUnixNano(m.getInt("created_at_unix_nano")),
	}
}

// StoreSecretRequest carries a secret value and its lifetime.
type StoreSecretRequest struct{ message }

func NewStoreSecretRequest(name string, value []byte, ttlSeconds int64) *StoreSecretRequest {
	m := newStoreSecretRequest()
	m.setString("name", name)
	m.setBytes("value", value)
	m.setInt("ttl_seconds", ttlSeconds)
	return m
}

func newStoreSecretRequest() *StoreSecretRequest {
	return &StoreSecretRequest{newMessage("StoreSecretRequest")}
}

func (m *StoreSecretRequest) GetName() string { return m.getString("name") }

func (m *StoreSecretRequest) GetValue() []byte { return m.getBytes("value") }

// GetTTLSeconds returns the requested lifetime. It fails for values above
// MaxTTLSeconds.
func (m *StoreSecretRequest) GetTTLSeconds() (int64, error) {
	ttl := m.getInt("ttl_seconds")
	if ttl > MaxTTLSeconds {
		return 0, common.Errorf(common.ErrInvalidArgument, "ttl must be at most %d seconds", MaxTTLSeconds)
	}
	return ttl, nil
}

func setInfo(m message, info *secret.Info) {
	m.setString("id", info.ID)
	m.setString("name", info.Name)
	m.setInt("created_at_unix_nano", unixNano(info.CreatedAt))
	m.setInt("expires_at_unix_nano", unixNano(info.ExpiresAt))
	m.setString("status", info.Status)
}

func getInfo(m message) secret.Info {
	return secret.Info{
		ID:        m.getString("id"),
		Name:      m.getString("name"),
		CreatedAt: fromUnixNano(m.getInt("created_at_unix_nano")),
		ExpiresAt: fromUnixNano(m.getInt("expires_at_unix_nano")),
		Status:    m.getString("status"),
	}
}

// SecretList is the metadata listing of the live secrets.
type SecretList struct{ message }

func NewSecretList() *SecretList { return &SecretList{newMessage("SecretList")} }

// Append adds one entry to the listing.
func (m *SecretList) Append(info *secret.Info) {
	list := m.msg.Mutable(m.field("secrets")).List()
	elem := list.NewElement()
	setInfo(message{elem.Message()}, info)
	list.Append(elem)
}

// Infos returns the entries of the listing.
func (m *SecretList) Infos() []secret.Info {
	list := m.msg.Get(m.field("secrets")).List()
	infos := make([]secret.Info, 0, list.Len())
	for i := range list.Len() {
		infos = append(infos, getInfo(message{list.Get(i).Message()}))
	}
	return infos
}

// Secret is a decrypted secret with its metadata.
type Secret struct{ message }

func SecretMessage(sec *secret.Secret) *Secret {
	m := newSecret()
	setInfo(message{m.msg.Mutable(m.field("info")).Message()}, &sec.Info)
	m.setBytes("value", sec.Value)
	return m
}

func newSecret() *Secret { return &Secret{newMessage("Secret")} }

// ToSecret converts the message back into a secret.
func (m *Secret) ToSecret() *secret.Secret {
	var info secret.Info
	if fd := m.field("info"); m.msg.Has(fd) {
		info = getInfo(message{m.msg.Get(fd).Message()})
	}
	return &secret.Secret{Info: info, Value: m.getBytes("value")}
}

// SecurityInfo describes where the daemon keeps its data.
type SecurityInfo struct{ message }

func SecurityInfoMessage(info *vault.SecurityInfo) *SecurityInfo {
	m := newSecurityInfo()
	m.setString("backend", info.Backend)
	m.setString("location", info.Location)
	m.setBool("volatile", info.Volatile)
	m.setString("cipher", info.Cipher)
	m.setInt("active_sessions", int64(info.ActiveSessions))
	m.setInt("secrets", int64(info.Secrets))
	m.setInt("pending_expiries", int64(info.PendingExpiries))
	return m
}

func newSecurityInfo() *SecurityInfo { return &SecurityInfo{newMessage("SecurityInfo")} }

// ToSecurityInfo converts the message back into the vault description.
func (m *SecurityInfo) ToSecurityInfo() *vault.SecurityInfo {
	return &vault.SecurityInfo{
		Backend:         m.getString("backend"),
		Location:        m.getString("location"),
		Volatile:        m.getBool("volatile"),
		Cipher:          m.getString("cipher"),
		ActiveSessions:  int(m.getInt("active_sessions")),
		Secrets:         int(m.getInt("secrets")),
		PendingExpiries: int(m.getInt("pending_expiries")),
	}
}
