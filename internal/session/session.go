// Package session keeps the anonymous identity a device uses with the carpool store.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const key = "session"

type Session struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store interface {
	Get(key string, v any) (bool, error)
	Put(key string, v any) error
	Delete(key string) error
}

// EnsureSignedIn returns the persisted session, minting an anonymous one on
// first launch.
func EnsureSignedIn(s Store) (Session, error) {
	var sess Session
	ok, err := s.Get(key, &sess)
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	if ok && sess.UserID != "" {
		if _, err := uuid.Parse(sess.UserID); err == nil {
			return sess, nil
		}
	}
	sess = Session{UserID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if err := s.Put(key, sess); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

func SignOut(s Store) error {
	return s.Delete(key)
}
