// Package credentials holds password hashing and reset-token helpers.
package credentials

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgoArgon2id = "argon2id"
	AlgoBcrypt   = "bcrypt"
)

var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Hasher hashes new passwords and compares candidates against stored hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) (bool, error)
	// CompareDummy burns the same time as a real comparison. Used when no user matched.
	CompareDummy(password string)
}

// PasswordHasher writes argon2id or bcrypt hashes and verifies both, dispatching on
// the stored prefix so seeded bcrypt hashes keep working.
type PasswordHasher struct {
	algo       string
	bcryptCost int
	params     *argon2id.Params

	dummyOnce sync.Once
	dummy     string
}

func NewPasswordHasher(algo string, bcryptCost int) *PasswordHasher {
	if algo != AlgoBcrypt {
		algo = AlgoArgon2id
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &PasswordHasher{algo: algo, bcryptCost: bcryptCost, params: argon2id.DefaultParams}
}

// WithArgon2Params overrides the argon2id cost parameters.
func (h *PasswordHasher) WithArgon2Params(p *argon2id.Params) *PasswordHasher {
	h.params = p
	return h
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.algo == AlgoBcrypt {
		b, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt hash: %w", err)
		}
		return string(b), nil
	}
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("argon2id hash: %w", err)
	}
	return hash, nil
}

func (h *PasswordHasher) Compare(password, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return argon2id.ComparePasswordAndHash(password, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnknownHashFormat
	}
}

func (h *PasswordHasher) CompareDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = h.Hash("natours-dummy-password")
	})
	_, _ = h.Compare(password, h.dummy)
}
