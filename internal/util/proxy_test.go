package util

import (
	"net/http"
	"testing"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "internal.example.com,10.0.0.0/8")

	tests := []struct {
		url  string
		want string
	}{
		{"http://api.openai.com/v1", "http://proxy.local:3128"},
		{"https://api.anthropic.com/v1/messages", "http://proxy.local:3128"},
		{"https://internal.example.com/doc", ""},
		{"http://10.1.2.3:11434/api/tags", ""},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, tt.url, nil)
		if err != nil {
			t.Fatal(err)
		}
		got, err := proxy(req)
		if err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("%s: proxy = %q, want %q", tt.url, gotStr, tt.want)
		}
	}
}

func TestNewProxyFunc_SchemeSpecific(t *testing.T) {
	proxy := NewProxyFunc("http://plain:8080", "http://secure:8443", "")

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	got, err := proxy(req)
	if err != nil || got == nil || got.Host != "secure:8443" {
		t.Errorf("https proxy = %v, %v", got, err)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://example.com", nil)
	got, err = proxy(req)
	if err != nil || got == nil || got.Host != "plain:8080" {
		t.Errorf("http proxy = %v, %v", got, err)
	}
}
