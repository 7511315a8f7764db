package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenerURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		address string
		want    string
	}{
		"default_port_only":    {address: ":8080", want: "http://localhost:8080/"},
		"explicit_localhost":   {address: "localhost:8000", want: "http://localhost:8000/"},
		"explicit_ipv4_any":    {address: "0.0.0.0:9000", want: "http://localhost:9000/"},
		"explicit_ipv4_local":  {address: "127.0.0.1:8080", want: "http://127.0.0.1:8080/"},
		"explicit_ipv6_any":    {address: "[::]:8080", want: "http://localhost:8080/"},
		"explicit_ipv6_custom": {address: "[2001:db8::1]:8080", want: "http://[2001:db8::1]:8080/"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, listenerURL(tc.address))
		})
	}
}

func TestNormaliseHostPortNoPort(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "localhost", normaliseHostPort(""))
	assert.Equal(t, "viewer.local", normaliseHostPort("viewer.local"))
}
