package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func withCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestRedisManager_LoginLogout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewManager(rdb, Options{Secret: secret})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Login(rec, httptest.NewRequest(http.MethodPost, "/api/login", nil), "u1"))
	assert.Len(t, mr.Keys(), 1)

	id, ok := m.UserID(withCookies(rec))
	require.True(t, ok)
	assert.Equal(t, "u1", id)

	out := httptest.NewRecorder()
	require.NoError(t, m.Logout(out, withCookies(rec)))
	assert.Empty(t, mr.Keys())

	_, ok = m.UserID(withCookies(rec))
	assert.False(t, ok)
}

func TestRedisManager_ExpiredSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewManager(rdb, Options{Secret: secret, MaxAge: 60})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Login(rec, httptest.NewRequest(http.MethodPost, "/", nil), "u1"))
	mr.FastForward(61 * time.Second)

	_, ok := m.UserID(withCookies(rec))
	assert.False(t, ok)
}

func TestRedisManager_TamperedCookie(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewManager(rdb, Options{Secret: secret})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})

	_, ok := m.UserID(req)
	assert.False(t, ok)
}

func TestFilesystemFallback(t *testing.T) {
	m := NewManager(nil, Options{Secret: secret, Dir: t.TempDir()})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Login(rec, httptest.NewRequest(http.MethodPost, "/", nil), "u7"))

	id, ok := m.UserID(withCookies(rec))
	require.True(t, ok)
	assert.Equal(t, "u7", id)
}

func TestNoCookie(t *testing.T) {
	m := NewManager(nil, Options{Secret: secret, Dir: t.TempDir()})
	_, ok := m.UserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestLogin_RotatesSessionID(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stores := map[string]*Manager{
		"redis":      NewManager(rdb, Options{Secret: secret}),
		"filesystem": NewManager(nil, Options{Secret: secret, Dir: t.TempDir()}),
	}
	for name, m := range stores {
		t.Run(name, func(t *testing.T) {
			planted := httptest.NewRecorder()
			require.NoError(t, m.Login(planted, httptest.NewRequest(http.MethodPost, "/api/login", nil), "attacker"))

			victim := httptest.NewRecorder()
			require.NoError(t, m.Login(victim, withCookies(planted), "victim"))

			_, ok := m.UserID(withCookies(planted))
			assert.False(t, ok)

			id, ok := m.UserID(withCookies(victim))
			require.True(t, ok)
			assert.Equal(t, "victim", id)
			assert.NotEqual(t, planted.Result().Cookies()[0].Value, victim.Result().Cookies()[0].Value)
		})
	}
	assert.Len(t, mr.Keys(), 1)
}
