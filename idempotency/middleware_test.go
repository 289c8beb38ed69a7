package idempotency_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/storefront-core/idempotency"
	"github.com/lumen/storefront-core/persist"
	"github.com/lumen/storefront-core/store/sqlite"
)

// newGuardedHandler wires the middleware around a handler that counts its
// executions, so tests can assert the side effect ran exactly once.
func newGuardedHandler(t *testing.T) (http.Handler, *int) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := idempotency.NewStore(persist.NewExecutor(db, nil, nil), time.Hour, nil)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	})
	return idempotency.Middleware(store, nil)(inner), &calls
}

func post(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotency.HeaderKey, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMiddleware_MissingKey_Rejected(t *testing.T) {
	h, calls := newGuardedHandler(t)

	w := post(h, "", `{"name":"Widget"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), idempotency.HeaderKey)
	assert.Zero(t, *calls, "the operation must not run without a key")
}

func TestMiddleware_FirstCallExecutesAndCaptures(t *testing.T) {
	h, calls := newGuardedHandler(t)

	w := post(h, "key-1", `{"name":"Widget"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"id":1}`, w.Body.String())
	assert.Empty(t, w.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t, 1, *calls)
}

func TestMiddleware_ReplaySameBody_ByteForByte(t *testing.T) {
	h, calls := newGuardedHandler(t)
	body := `{"name":"Widget"}`

	first := post(h, "key-1", body)
	second := post(h, "key-1", body)

	// GIVEN/THEN: the replay is indistinguishable from the original except
	// for the marker header, and the operation ran exactly once.
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t, 1, *calls)
}

func TestMiddleware_SameKeyDifferentBody_Conflict(t *testing.T) {
	h, calls := newGuardedHandler(t)

	post(h, "key-1", `{"name":"Widget"}`)
	w := post(h, "key-1", `{"name":"Gadget"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "reused")
	assert.Equal(t, 1, *calls, "a key conflict must not re-execute the operation")
}

func TestMiddleware_DifferentKeys_ExecuteIndependently(t *testing.T) {
	h, calls := newGuardedHandler(t)
	body := `{"name":"Widget"}`

	a := post(h, "key-1", body)
	b := post(h, "key-2", body)

	assert.Equal(t, http.StatusCreated, a.Code)
	assert.Equal(t, http.StatusCreated, b.Code)
	assert.Equal(t, 2, *calls, "the same body under different keys is two operations")
}

func TestMiddleware_EndpointScopesTheKey(t *testing.T) {
	h, calls := newGuardedHandler(t)
	body := `{"name":"Widget"}`

	post(h, "key-1", body)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	req.Header.Set(idempotency.HeaderKey, "key-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t, 2, *calls)
}

func TestMiddleware_FailureResponsesAreNotCaptured(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := idempotency.NewStore(persist.NewExecutor(db, nil, nil), time.Hour, nil)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"transient"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	})
	h := idempotency.Middleware(store, nil)(inner)

	// GIVEN a failed first attempt
	first := post(h, "key-1", `{"name":"Widget"}`)
	require.Equal(t, http.StatusInternalServerError, first.Code)

	// WHEN the client retries with the same key
	second := post(h, "key-1", `{"name":"Widget"}`)

	// THEN the retry executes for real instead of replaying the failure
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Empty(t, second.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t, 2, calls)
}
