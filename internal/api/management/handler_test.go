// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package management

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/switchAccount/internal/creds"
	"github.com/traylinx/switchAccount/internal/extract"
	"github.com/traylinx/switchAccount/internal/registry"
	"github.com/traylinx/switchAccount/internal/secretstore"
	"github.com/traylinx/switchAccount/internal/snapshot"
	"github.com/traylinx/switchAccount/internal/statestore"
	"github.com/traylinx/switchAccount/internal/util"
)

type testEnv struct {
	engine *gin.Engine
	state  *statestore.MemStore
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("SWITCHACCT_STATE_DIR", t.TempDir())

	state := statestore.NewMemStore()
	secrets := secretstore.NewMem()
	keys := extract.DefaultKeys()
	pipeline := extract.NewPipeline(state, keys)
	svc := creds.NewService(secrets, pipeline, nil, nil)
	snaps := snapshot.NewManager(state, secrets, keys.Identity)
	sb, err := util.NewStateBox()
	require.NoError(t, err)
	reg := registry.New(sb)

	engine := gin.New()
	NewHandler(svc, snaps, reg).Register(engine)
	return &testEnv{engine: engine, state: state}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "127.0.0.1:52100"
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestCaptureAndList(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	require.NoError(t, env.state.Set(ctx, extract.DefaultKeys().Status,
		[]byte(`{"email":"a@x.com","apiKey":"AT1"}`)))

	w := env.do(http.MethodPost, "/v1/accounts/capture", `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "a@x.com", gjson.Get(w.Body.String(), "email").String())

	w = env.do(http.MethodGet, "/v1/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	accounts := gjson.Get(w.Body.String(), "accounts")
	require.Len(t, accounts.Array(), 1)
	assert.Equal(t, "a@x.com", accounts.Get("0.email").String())
	assert.Equal(t, "valid", accounts.Get("0.state").String())
	assert.True(t, accounts.Get("0.validOrRecoverable").Bool())
}

func TestCapture_EmptyStore(t *testing.T) {
	env := newEnv(t)
	w := env.do(http.MethodPost, "/v1/accounts/capture", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAccountToken(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	require.NoError(t, env.state.Set(ctx, extract.DefaultKeys().Status,
		[]byte(`{"email":"a@x.com","apiKey":"AT1"}`)))

	w := env.do(http.MethodGet, "/v1/accounts/a@x.com/token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AT1", gjson.Get(w.Body.String(), "accessToken").String())

	// With an empty store the account cannot be recovered either.
	env2 := newEnv(t)
	w = env2.do(http.MethodGet, "/v1/accounts/ghost@x.com/token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotSaveSwitchDelete(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	identityKey := extract.DefaultKeys().Identity
	require.NoError(t, env.state.Set(ctx, identityKey, []byte(`{"email":"a@x.com","v":1}`)))

	w := env.do(http.MethodPost, "/v1/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "a@x.com", gjson.Get(w.Body.String(), "email").String())

	require.NoError(t, env.state.Set(ctx, identityKey, []byte(`{"email":"b@x.com","v":2}`)))
	w = env.do(http.MethodPost, "/v1/snapshots/a@x.com/switch", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	blob, ok, err := env.state.Get(ctx, identityKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"email":"a@x.com","v":1}`, string(blob))

	w = env.do(http.MethodDelete, "/v1/snapshots/a@x.com", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodPost, "/v1/snapshots/a@x.com/switch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwitch_NoSnapshot(t *testing.T) {
	env := newEnv(t)
	w := env.do(http.MethodPost, "/v1/snapshots/a@x.com/switch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveSnapshot_NothingToSave(t *testing.T) {
	env := newEnv(t)
	w := env.do(http.MethodPost, "/v1/snapshots", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLocalhostOnly(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	req.RemoteAddr = "192.168.1.50:1234"
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Loopback with a proxy header is also refused.
	req = httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteAccount(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	require.NoError(t, env.state.Set(ctx, extract.DefaultKeys().Status,
		[]byte(`{"email":"a@x.com","apiKey":"AT1"}`)))
	w := env.do(http.MethodPost, "/v1/accounts/capture", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/v1/accounts/a@x.com", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/v1/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gjson.Get(w.Body.String(), "accounts").Array())
}
