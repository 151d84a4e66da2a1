package match

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"golang.org/x/crypto/bcrypt"
)

const (
	accessCodeDigits   = 4
	accessCodeAttempts = 10
)

// Registry holds the live matches of the process, keyed by access code.
//
// Like Match, a Registry is owned by the gateway engine loop and is not
// safe for concurrent use.
type Registry struct {
	matches         map[string]*Match
	adminSecretHash []byte
}

// NewRegistry creates an empty registry. adminSecretHash is the bcrypt hash
// of the secret required by DeleteAll; an empty hash disables DeleteAll.
func NewRegistry(adminSecretHash []byte) *Registry {
	return &Registry{
		matches:         make(map[string]*Match),
		adminSecretHash: adminSecretHash,
	}
}

// Create registers m under its access code.
func (r *Registry) Create(m *Match) error {
	if _, exists := r.matches[m.AccessCode]; exists {
		return fmt.Errorf("create match %s: %w", m.AccessCode, ErrConflict)
	}
	r.matches[m.AccessCode] = m
	return nil
}

// Get returns the match for code.
func (r *Registry) Get(code string) (*Match, error) {
	m, ok := r.matches[code]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", code, ErrNotFound)
	}
	return m, nil
}

// Delete removes the match for code.
func (r *Registry) Delete(code string) error {
	if _, ok := r.matches[code]; !ok {
		return fmt.Errorf("delete match %s: %w", code, ErrNotFound)
	}
	delete(r.matches, code)
	return nil
}

// DeleteAll removes every match when secret matches the admin secret and
// returns the codes that were removed.
func (r *Registry) DeleteAll(secret string) ([]string, error) {
	if len(r.adminSecretHash) == 0 || bcrypt.CompareHashAndPassword(r.adminSecretHash, []byte(secret)) != nil {
		return nil, fmt.Errorf("delete all matches: %w", ErrUnauthorized)
	}
	codes := r.Codes()
	r.matches = make(map[string]*Match)
	return codes, nil
}

// AccessCodeExists reports whether a live match uses code.
func (r *Registry) AccessCodeExists(code string) bool {
	_, ok := r.matches[code]
	return ok
}

// Codes returns the sorted access codes of all live matches.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.matches))
	for code := range r.matches {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of live matches.
func (r *Registry) Len() int {
	return len(r.matches)
}

// NewAccessCode draws a numeric access code not used by any live match.
func (r *Registry) NewAccessCode() (string, error) {
	for range accessCodeAttempts {
		code, err := GenerateAccessCode()
		if err != nil {
			return "", fmt.Errorf("generating access code: %w", err)
		}
		if !r.AccessCodeExists(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free access code after %d attempts: %w", accessCodeAttempts, ErrConflict)
}

// GenerateAccessCode returns a random code of accessCodeDigits digits.
func GenerateAccessCode() (string, error) {
	code := make([]byte, accessCodeDigits)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
