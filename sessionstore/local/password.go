package local

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyPassword             = errors.New("password must not be empty")
	ErrMismatchedHashAndPassword = errors.New("password does not match")
)

// HashPassword will generate a password hash with the given bcrypt cost
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// decoyHash is compared against when the email is unknown, so a miss costs
// about as much as a wrong password.
type decoyHash struct {
	once sync.Once
	cost int
	hash string
}

func (d *decoyHash) get() string {
	d.once.Do(func() {
		h, err := HashPassword(uuid.NewString(), d.cost)
		if err != nil {
			h = ""
		}
		d.hash = h
	})
	return d.hash
}
