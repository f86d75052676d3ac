package naming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDomain(t *testing.T) {
	assert.Equal(t, DefaultDomain, ValidateDomain(""))
	assert.Equal(t, "example.org.", ValidateDomain("example.org."))
	assert.Equal(t, "local", ValidateDomain("local"), "non-empty domains pass through unchanged")
}

func TestCheckRegtype(t *testing.T) {
	tests := []struct {
		regtype string
		valid   bool
	}{
		{"_chat._tcp", true},
		{"_chat._udp.", true},
		{"_http._tcp", true},
		{"chat._tcp", false},
		{"_chat._sctp", false},
		{"_chat", false},
		{"_a-very-long-service._tcp", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.regtype, func(t *testing.T) {
			err := CheckRegtype(tt.regtype)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidRegtype), "expected ErrInvalidRegtype, got %v", err)
			}
		})
	}
}

func TestCheckNameAndDomain(t *testing.T) {
	assert.NoError(t, CheckName("alice"))
	assert.ErrorIs(t, CheckName(string(make([]byte, 64))), ErrInvalidName)
	assert.NoError(t, CheckDomain(""))
	assert.NoError(t, CheckDomain("local."))
	assert.ErrorIs(t, CheckDomain("bad..domain"), ErrInvalidDomain)
}

func TestServiceAndInstanceName(t *testing.T) {
	assert.Equal(t, "_chat._tcp.local.", ServiceName("_chat._tcp", ""))
	assert.Equal(t, "_chat._tcp.local.", ServiceName("_chat._tcp.", "local"))
	assert.Equal(t, "_chat._tcp.example.org.", ServiceName("_chat._tcp", "example.org."))
	assert.Equal(t, `my\.box._chat._tcp.local.`, InstanceName("my.box", "_chat._tcp", "local."))
}

func TestHostName(t *testing.T) {
	assert.Equal(t, "", HostName("", "local."))
	assert.Equal(t, "alpha.local.", HostName("alpha", ""))
	assert.Equal(t, "alpha.local.", HostName("alpha.local", "ignored."))
	assert.Equal(t, "alpha.local.", HostName("alpha.local.", ""))
}

func TestSplitInstance(t *testing.T) {
	name, regtype, domain, ok := SplitInstance("alice._chat._tcp.local.")
	require.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, "_chat._tcp", regtype)
	assert.Equal(t, "local.", domain)

	name, _, _, ok = SplitInstance(`my\.box._chat._tcp.local.`)
	require.True(t, ok)
	assert.Equal(t, "my.box", name)

	name, _, _, ok = SplitInstance(`Living\032Room._chat._udp.local.`)
	require.True(t, ok)
	assert.Equal(t, "Living Room", name)

	_, _, _, ok = SplitInstance("no-service-here.local.")
	assert.False(t, ok)
}

func TestEscapeRoundTrip(t *testing.T) {
	for _, label := range []string{"plain", "a.b", `back\slash`, "trailing."} {
		assert.Equal(t, label, UnescapeLabel(EscapeLabel(label)))
	}
}
