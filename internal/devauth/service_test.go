package devauth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, store ChallengeStore) (*Service, *httptest.Server) {
	t.Helper()
	svc, err := New(Config{Store: store})
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return svc, srv
}

func post(t *testing.T, srv *httptest.Server, body map[string]any) (int, map[string]any) {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+AuthenticatePath, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func passwordBody(email, password string) map[string]any {
	return map[string]any{
		"strategy": "password",
		"user":     map[string]any{"email": email},
		"password": password,
	}
}

func TestPasswordLoginIssuesSession(t *testing.T) {
	svc, srv := newTestService(t, nil)
	_, err := svc.AddUser("a@b.com", "secret", "")
	require.NoError(t, err)

	status, body := post(t, srv, passwordBody("A@B.com ", "secret"))
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "mfaToken")
	tokens, ok := body["tokens"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, tokens["accessToken"])
}

func TestPasswordLoginRejectsBadPassword(t *testing.T) {
	svc, srv := newTestService(t, nil)
	_, err := svc.AddUser("a@b.com", "secret", "")
	require.NoError(t, err)

	status, body := post(t, srv, passwordBody("a@b.com", "nope"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["message"])

	status, _ = post(t, srv, passwordBody("", "x"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = post(t, srv, map[string]any{"strategy": "magic"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Unsupported strategy", body["message"])
}

func TestDuplicateUser(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.AddUser("a@b.com", "secret", "")
	require.NoError(t, err)
	_, err = svc.AddUser(" A@b.com", "other", "")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func runChallengeFlow(t *testing.T, store ChallengeStore) {
	svc, srv := newTestService(t, store)
	secret, err := GenerateTOTPSecret("devauth", "a@b.com")
	require.NoError(t, err)
	_, err = svc.AddUser("a@b.com", "secret", secret)
	require.NoError(t, err)

	status, body := post(t, srv, passwordBody("a@b.com", "secret"))
	require.Equal(t, http.StatusOK, status)
	token, ok := body["mfaToken"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	status, body = post(t, srv, map[string]any{"strategy": "mfa", "mfaToken": token, "code": "000000x"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid code", body["message"])

	code, err := TOTPCode(secret, time.Now())
	require.NoError(t, err)
	status, body = post(t, srv, map[string]any{"strategy": "mfa", "mfaToken": token, "code": code})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "tokens")

	status, _ = post(t, srv, map[string]any{"strategy": "mfa", "mfaToken": token, "code": code})
	assert.Equal(t, http.StatusUnauthorized, status, "a challenge is consumed by its first success")
}

func TestChallengeFlowMemoryStore(t *testing.T) {
	runChallengeFlow(t, nil)
}

func TestChallengeFlowRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	runChallengeFlow(t, NewRedisChallengeStore(client, ""))
}

func TestChallengeIsConsumedOnce(t *testing.T) {
	svc, srv := newTestService(t, nil)
	secret, err := GenerateTOTPSecret("devauth", "a@b.com")
	require.NoError(t, err)
	_, err = svc.AddUser("a@b.com", "secret", secret)
	require.NoError(t, err)

	_, body := post(t, srv, passwordBody("a@b.com", "secret"))
	token, _ := body["mfaToken"].(string)
	require.NotEmpty(t, token)
	code, err := TOTPCode(secret, time.Now())
	require.NoError(t, err)
	encoded, err := json.Marshal(map[string]any{"strategy": "mfa", "mfaToken": token, "code": code})
	require.NoError(t, err)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+AuthenticatePath, "application/json", bytes.NewReader(encoded))
			if err != nil {
				return
			}
			resp.Body.Close()
			mu.Lock()
			statuses = append(statuses, resp.StatusCode)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, statuses, attempts)
	var sessions int
	for _, status := range statuses {
		if status == http.StatusOK {
			sessions++
		} else {
			assert.Equal(t, http.StatusUnauthorized, status)
		}
	}
	assert.Equal(t, 1, sessions)
}

func TestChallengeStoreTake(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]ChallengeStore{
		"memory": NewMemoryChallengeStore(nil),
		"redis":  NewRedisChallengeStore(client, "take"),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, "tok", Challenge{UserID: "u1"}, time.Minute))

			got, err := store.Take(ctx, "tok")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)

			_, err = store.Take(ctx, "tok")
			assert.ErrorIs(t, err, ErrChallengeNotFound)
			_, err = store.Get(ctx, "tok")
			assert.ErrorIs(t, err, ErrChallengeNotFound)
		})
	}
}

func TestRedisChallengeStoreExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisChallengeStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok", Challenge{UserID: "u1", Email: "a@b.com"}, time.Minute))
	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, mr.Exists("test:tok"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestMemoryChallengeStoreExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryChallengeStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok", Challenge{UserID: "u1"}, time.Minute))
	_, err := store.Get(ctx, "tok")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestJWKSHandlerPublishesSigningKey(t *testing.T) {
	svc, srv := newTestService(t, nil)

	resp, err := http.Get(srv.URL + JWKSPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, svc.signer.keyID, set.Keys[0]["kid"])
	assert.Equal(t, "RSA", set.Keys[0]["kty"])
}
