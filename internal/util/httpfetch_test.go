package util

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"100.64.0.1", true},
		{"100.127.255.254", true},
		{"100.128.0.1", false},
		{"198.18.0.1", true},
		{"192.0.2.10", true},
		{"240.0.0.1", true},
		{"255.255.255.255", true},
		{"224.0.0.1", true},
		{"::ffff:10.0.0.1", true},
		{"::ffff:100.64.0.1", true},
		{"64:ff9b::a00:1", true},
		{"2001:db8::1", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}

	for _, test := range tests {
		if got := isPrivateIP(net.ParseIP(test.ip)); got != test.expected {
			t.Errorf("isPrivateIP(%s) = %v, expected %v", test.ip, got, test.expected)
		}
	}
}

func TestFetchURLRejectsInsecureURLs(t *testing.T) {
	f := NewHTTPFetcher()
	for _, u := range []string{"http://example.com/a.png", "ftp://example.com/a.png", "https://", "a.png"} {
		if _, _, err := f.FetchURL(context.Background(), u); !errors.Is(err, ErrInsecureURL) {
			t.Errorf("FetchURL(%q) error = %v, want ErrInsecureURL", u, err)
		}
	}
}

func TestIsPrivateIPRejectsMalformed(t *testing.T) {
	if !isPrivateIP(net.IP{1, 2, 3}) {
		t.Error("malformed address treated as public")
	}
}
