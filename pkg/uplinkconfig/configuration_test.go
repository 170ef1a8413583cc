package uplinkconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfiguration_Equal(t *testing.T) {
	base := New([]byte("X"), true, []string{"-v"}, "google.com")

	tests := []struct {
		name  string
		other *Configuration
		equal bool
	}{
		{"identical", New([]byte("X"), true, []string{"-v"}, "google.com"), true},
		{"credentials differ", New([]byte("Y"), true, []string{"-v"}, "google.com"), false},
		{"remote shell differs", New([]byte("X"), false, []string{"-v"}, "google.com"), false},
		{"extra args differ", New([]byte("X"), true, []string{"-vv"}, "google.com"), false},
		{"extra args empty", New([]byte("X"), true, nil, "google.com"), false},
		{"ping target differs", New([]byte("X"), true, []string{"-v"}, "example.com"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, base.Equal(tt.other))
		})
	}
}

func TestConfiguration_ArgumentOrderMatters(t *testing.T) {
	a := New(nil, true, []string{"-v", "-m"}, "")
	b := New(nil, true, []string{"-m", "-v"}, "")

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestConfiguration_NilEquality(t *testing.T) {
	var a, b *Configuration
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(NewDefault(nil)))
}

func TestConfiguration_IsImmutable(t *testing.T) {
	creds := []byte("secret")
	args := []string{"-v"}
	cfg := New(creds, true, args, "google.com")

	creds[0] = 'S'
	args[0] = "-q"
	cfg.ExtraArgs()[0] = "-x"
	cfg.Credentials()[0] = 'Z'

	assert.Equal(t, []byte("secret"), cfg.Credentials())
	assert.Equal(t, []string{"-v"}, cfg.ExtraArgs())
}

func TestConfiguration_Defaults(t *testing.T) {
	cfg := NewDefault([]byte("{}"))

	assert.True(t, cfg.EnableRemoteShell())
	assert.Equal(t, []string{"-v"}, cfg.ExtraArgs())
	assert.Equal(t, "google.com", cfg.PingTarget())
}

func TestConfiguration_FingerprintStableAndDistinct(t *testing.T) {
	a := New([]byte("X"), true, []string{"-v"}, "google.com")
	b := New([]byte("X"), true, []string{"-v"}, "google.com")
	c := New([]byte("X"), false, []string{"-v"}, "google.com")

	assert.Len(t, a.Fingerprint(), 16)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotContains(t, a.Fingerprint(), "X")
}
