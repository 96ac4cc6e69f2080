// Package session keeps the server-side login session.  The cookie carries
// only a signed session id; the values live in Redis, or on disk when Redis
// is unavailable.
package session

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

// RedisStore is a sessions.Store keeping values in Redis under
// "<prefix><id>".
type RedisStore struct {
	client  *redis.Client
	codecs  []securecookie.Codec
	prefix  string
	Options *sessions.Options
}

// NewRedisStore creates a store.  keyPairs are securecookie hash/block key
// pairs used to sign the id cookie.
func NewRedisStore(client *redis.Client, prefix string, keyPairs ...[]byte) *RedisStore {
	return &RedisStore{
		client: client,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		prefix: prefix,
		Options: &sessions.Options{
			Path:   "/",
			MaxAge: 86400 * 7,
		},
	}
}

// Get returns the session cached for this request or loads it.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie, or returns a fresh
// one when there is no valid cookie or the id has expired.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &sess.ID, s.codecs...); err != nil {
		sess.ID = ""
		return sess, err
	}
	found, err := s.load(r.Context(), sess)
	if err != nil {
		return sess, err
	}
	if !found {
		sess.ID = ""
		return sess, nil
	}
	sess.IsNew = false
	return sess, nil
}

// Save persists sess and writes the id cookie.  A negative MaxAge deletes
// the session and expires the cookie.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	ctx, cancel := context.WithTimeout(r.Context(), redisTimeout)
	defer cancel()

	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.client.Del(ctx, s.prefix+sess.ID).Err(); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	if sess.ID == "" {
		sess.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sess.Values); err != nil {
		return err
	}
	ttl := time.Duration(sess.Options.MaxAge) * time.Second
	if err := s.client.Set(ctx, s.prefix+sess.ID, buf.Bytes(), ttl).Err(); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), encoded, sess.Options))
	return nil
}

func (s *RedisStore) load(ctx context.Context, sess *sessions.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.prefix+sess.ID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&sess.Values); err != nil {
		return false, err
	}
	return true, nil
}
