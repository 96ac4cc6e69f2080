package session

import (
	"net/http"
	"os"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// CookieName is the name of the session cookie.
const CookieName = "homewatch_session"

const userIDKey = "user_id"

// Manager reads and writes the acting user id in the session.
type Manager struct {
	store sessions.Store
}

// Options configures NewManager.
type Options struct {
	Secret string
	Secure bool
	MaxAge int
	// Dir is where the filesystem fallback keeps session files.  Empty
	// means the OS temp dir.
	Dir string
}

// NewManager builds a Manager backed by Redis, or by the filesystem store
// when rdb is nil.
func NewManager(rdb *redis.Client, opts Options) *Manager {
	if opts.MaxAge == 0 {
		opts.MaxAge = 86400 * 7
	}
	cookie := &sessions.Options{
		Path:     "/",
		MaxAge:   opts.MaxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if rdb != nil {
		st := NewRedisStore(rdb, "session:", []byte(opts.Secret))
		st.Options = cookie
		return &Manager{store: st}
	}
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	st := sessions.NewFilesystemStore(dir, []byte(opts.Secret))
	st.Options = cookie
	return &Manager{store: st}
}

// NewManagerWithStore wraps an existing store.
func NewManagerWithStore(store sessions.Store) *Manager {
	return &Manager{store: store}
}

// Login starts a session for userID under a freshly issued id.  A session
// the request already carried is destroyed first, so a cookie planted
// before login never becomes authenticated.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, userID string) error {
	sess, _ := m.store.Get(r, CookieName)
	opts := *sess.Options
	if !sess.IsNew && sess.ID != "" {
		sess.Options.MaxAge = -1
		if err := sess.Save(r, discardWriter{}); err != nil {
			return err
		}
	}
	sess.ID = ""
	sess.IsNew = true
	sess.Options = &opts
	sess.Values = map[any]any{userIDKey: userID}
	return sess.Save(r, w)
}

// UserID returns the user id of the request's session, if any.
func (m *Manager) UserID(r *http.Request) (string, bool) {
	sess, err := m.store.Get(r, CookieName)
	if err != nil || sess.IsNew {
		return "", false
	}
	id, ok := sess.Values[userIDKey].(string)
	return id, ok && id != ""
}

// Logout destroys the request's session.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, CookieName)
	sess.Options.MaxAge = -1
	sess.Values = map[any]any{}
	return sess.Save(r, w)
}

// discardWriter swallows the expiry cookie written while destroying the
// previous session; the new session cookie replaces it.
type discardWriter struct{}

func (discardWriter) Header() http.Header { return http.Header{} }
func (discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardWriter) WriteHeader(int) {}
