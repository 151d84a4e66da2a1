package match

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestRegistry(t *testing.T, secret string) *Registry {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return NewRegistry(hash)
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newTestRegistry(t, "s3cret")
	m := New("1234", testGame(), false)

	require.NoError(t, r.Create(m))
	assert.ErrorIs(t, r.Create(New("1234", testGame(), true)), ErrConflict)
	assert.True(t, r.AccessCodeExists("1234"))

	got, err := r.Get("1234")
	require.NoError(t, err)
	assert.Same(t, m, got)

	require.NoError(t, r.Delete("1234"))
	assert.ErrorIs(t, r.Delete("1234"), ErrNotFound)
	_, err = r.Get("1234")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, r.AccessCodeExists("1234"))
}

func TestRegistry_DeleteAll(t *testing.T) {
	r := newTestRegistry(t, "s3cret")
	require.NoError(t, r.Create(New("2222", testGame(), false)))
	require.NoError(t, r.Create(New("1111", testGame(), false)))

	_, err := r.DeleteAll("wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, r.Len())

	codes, err := r.DeleteAll("s3cret")
	require.NoError(t, err)
	assert.Equal(t, []string{"1111", "2222"}, codes)
	assert.Zero(t, r.Len())
}

func TestRegistry_DeleteAllWithoutSecretConfigured(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.DeleteAll("")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegistry_IsolatedInstances(t *testing.T) {
	a := NewRegistry(nil)
	b := NewRegistry(nil)
	require.NoError(t, a.Create(New("1234", testGame(), false)))

	assert.False(t, b.AccessCodeExists("1234"))
}

func TestGenerateAccessCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9]{4}$`)
	for range 100 {
		code, err := GenerateAccessCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestRegistry_NewAccessCodeIsFree(t *testing.T) {
	r := NewRegistry(nil)
	for range 50 {
		code, err := r.NewAccessCode()
		require.NoError(t, err)
		require.False(t, r.AccessCodeExists(code))
		require.NoError(t, r.Create(New(code, testGame(), false)))
	}
	assert.Equal(t, 50, r.Len())
}
