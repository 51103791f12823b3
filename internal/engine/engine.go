// Package engine implements the authorization and mutation core: who may
// change what, applying permitted changes, and triggering notification
// fan-out after task updates.
package engine

import (
	"database/sql"
	"errors"
	"time"

	"taskhub/internal/config"
	"taskhub/internal/engine/notify"
	"taskhub/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Notify notify.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Notify: notify.Service{Repo: r},
		Config: cfg,
		Now:    time.Now,
	}
}

// ErrInvalidCredentials is returned by Authenticate on a bad email/password
// pair. Callers map it to a 401.
var ErrInvalidCredentials = errors.New("invalid credentials")

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}
