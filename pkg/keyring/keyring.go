// Package keyring stores the admin token in the operating system's keyring,
// falling back to a file when no keyring service is available.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/infoboard/infoboard/pkg/logger"
)

// ErrNotFound is returned when no token has been stored yet.
var ErrNotFound = errors.New("admin token not found")

// tokenBytes is the entropy of a generated token.
const tokenBytes = 32

// Store keeps a single secret token.
type Store interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// System stores the token in the OS keyring.
type System struct {
	AppName  string
	KeyField string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
	randRead      = rand.Read
)

func NewSystem() *System {
	return &System{
		AppName:  "infoboard",
		KeyField: "admin-token",
	}
}

func (k *System) Get() (string, error) {
	token, err := keyringGet(k.AppName, k.KeyField)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return token, err
}

func (k *System) Set(token string) error {
	return keyringSet(k.AppName, k.KeyField, token)
}

func (k *System) Delete() error {
	err := keyringDelete(k.AppName, k.KeyField)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// NewToken returns a random hex token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := randRead(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Fallback uses Primary and switches to Secondary for good once Primary
// fails with anything other than ErrNotFound.
type Fallback struct {
	Primary   Store
	Secondary Store
	log       logger.Logger
	degraded  bool
}

// New returns the system keyring backed by a token file under dir.
func New(dir string, l logger.Logger) *Fallback {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Fallback{
		Primary:   NewSystem(),
		Secondary: NewFileStore(dir),
		log:       l,
	}
}

func (f *Fallback) do(op func(Store) error) error {
	if !f.degraded {
		err := op(f.Primary)
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		f.log.Warning("keyring: system keyring unavailable, using file store: %v", err)
		f.degraded = true
	}
	return op(f.Secondary)
}

func (f *Fallback) Get() (token string, err error) {
	err = f.do(func(s Store) error {
		token, err = s.Get()
		return err
	})
	return token, err
}

func (f *Fallback) Set(token string) error {
	return f.do(func(s Store) error { return s.Set(token) })
}

func (f *Fallback) Delete() error {
	return f.do(func(s Store) error { return s.Delete() })
}

// Ensure returns the stored token, generating and storing one first if
// none exists. created reports whether a new token was made.
func Ensure(s Store) (token string, created bool, err error) {
	token, err = s.Get()
	if err == nil {
		return token, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}
	if token, err = NewToken(); err != nil {
		return "", false, err
	}
	if err = s.Set(token); err != nil {
		return "", false, err
	}
	return token, true, nil
}
