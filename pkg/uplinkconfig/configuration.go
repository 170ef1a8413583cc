package uplinkconfig

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const (
	DefaultPingTarget        = "google.com"
	DefaultEnableRemoteShell = true
)

// DefaultExtraArgs returns the arguments appended to every uplink invocation
// unless the caller overrides them.
func DefaultExtraArgs() []string {
	return []string{"-v"}
}

// Configuration is the desired uplink setup. Values are immutable: every
// accessor hands out copies and updates replace the whole value.
type Configuration struct {
	credentials       []byte
	enableRemoteShell bool
	extraArgs         []string
	pingTarget        string
}

func New(credentials []byte, enableRemoteShell bool, extraArgs []string, pingTarget string) *Configuration {
	return &Configuration{
		credentials:       append([]byte(nil), credentials...),
		enableRemoteShell: enableRemoteShell,
		extraArgs:         append([]string(nil), extraArgs...),
		pingTarget:        pingTarget,
	}
}

// NewDefault builds a configuration with the stock remote shell, argument
// and ping target settings.
func NewDefault(credentials []byte) *Configuration {
	return New(credentials, DefaultEnableRemoteShell, DefaultExtraArgs(), DefaultPingTarget)
}

func (c *Configuration) Credentials() []byte {
	return append([]byte(nil), c.credentials...)
}

func (c *Configuration) EnableRemoteShell() bool {
	return c.enableRemoteShell
}

func (c *Configuration) ExtraArgs() []string {
	return append([]string(nil), c.extraArgs...)
}

func (c *Configuration) PingTarget() string {
	return c.pingTarget
}

// Equal compares every field, argument order included. Two nil
// configurations are equal.
func (c *Configuration) Equal(other *Configuration) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.enableRemoteShell != other.enableRemoteShell || c.pingTarget != other.pingTarget {
		return false
	}
	if !bytes.Equal(c.credentials, other.credentials) {
		return false
	}
	if len(c.extraArgs) != len(other.extraArgs) {
		return false
	}
	for i := range c.extraArgs {
		if c.extraArgs[i] != other.extraArgs[i] {
			return false
		}
	}
	return true
}

// Fingerprint is a short BLAKE3 digest of the configuration for logs and
// status reports. Credentials contribute to the digest but never appear in
// clear text.
func (c *Configuration) Fingerprint() string {
	if c == nil {
		return ""
	}
	hasher := blake3.New()
	writeField := func(b []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(b)))
		hasher.Write(length[:])
		hasher.Write(b)
	}
	writeField(c.credentials)
	if c.enableRemoteShell {
		writeField([]byte{1})
	} else {
		writeField([]byte{0})
	}
	writeField([]byte(c.pingTarget))
	for _, arg := range c.extraArgs {
		writeField([]byte(arg))
	}
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
