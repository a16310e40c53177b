package weburl

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fragment stripped",
			in:   "https://a.com/x#frag",
			want: "https://a.com/x",
		},
		{
			name: "trailing slash stripped",
			in:   "https://a.com/x/",
			want: "https://a.com/x",
		},
		{
			name: "fragment then trailing slash",
			in:   "https://a.com/x/#frag",
			want: "https://a.com/x",
		},
		{
			name: "already canonical",
			in:   "https://a.com/x",
			want: "https://a.com/x",
		},
		{
			name: "fragment only",
			in:   "#top",
			want: "",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)

			// Normalization must be idempotent.
			assert.Equal(t, got, Normalize(got))
		})
	}
}

func TestIsInternal(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		baseDomain string
		want       bool
	}{
		{"exact host", "https://example.com/page", "example.com", true},
		{"subdomain", "https://docs.example.com/page", "example.com", true},
		{"nested subdomain", "https://a.b.example.com", "example.com", true},
		{"external host", "https://other.com/page", "example.com", false},
		{"suffix but not subdomain", "https://badexample.com", "example.com", false},
		{"empty base domain", "https://example.com", "", false},
		{"unparseable url", "http://%zz", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInternal(tt.url, tt.baseDomain))
		})
	}
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "docs.example.com", ExtractDomain("https://docs.example.com/x/y"))
	assert.Equal(t, "example.com", ExtractDomain("https://example.com:8443/"))
	assert.Equal(t, "", ExtractDomain("http://%zz"))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com", false},
		{"valid http", "http://example.com/path", false},
		{"ftp rejected", "ftp://example.com", true},
		{"localhost rejected", "http://localhost:8080", true},
		{"loopback rejected", "https://127.0.0.1", true},
		{"private ip rejected", "https://192.168.1.1", true},
		{"local domain rejected", "https://nas.local", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP(net.ParseIP("10.0.0.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("100.64.0.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("::ffff:192.168.0.1")))
	assert.False(t, IsPrivateIP(net.ParseIP("8.8.8.8")))
}
