package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		header func(*http.Request)
		want   int
	}{
		{"disabled when no key configured", "", func(r *http.Request) {}, http.StatusOK},
		{"missing token", "sekrit", func(r *http.Request) {}, http.StatusUnauthorized},
		{"wrong token", "sekrit", func(r *http.Request) {
			r.Header.Set("X-API-Key", "nope")
		}, http.StatusUnauthorized},
		{"x-api-key header", "sekrit", func(r *http.Request) {
			r.Header.Set("X-API-Key", "sekrit")
		}, http.StatusOK},
		{"bearer token", "sekrit", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer sekrit")
		}, http.StatusOK},
		{"bearer is case-insensitive", "sekrit", func(r *http.Request) {
			r.Header.Set("Authorization", "bearer sekrit")
		}, http.StatusOK},
		{"basic scheme rejected", "sekrit", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic sekrit")
		}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(tt.apiKey)(okHandler())
			r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
			tt.header(r)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

type fakeLimiter struct {
	allowed bool
	err     error
	gotKey  string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.gotKey = key
	return f.allowed, f.err
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		limiter *fakeLimiter
		want    int
	}{
		{"allowed", &fakeLimiter{allowed: true}, http.StatusOK},
		{"limited", &fakeLimiter{allowed: false}, http.StatusTooManyRequests},
		{"fails open on limiter error", &fakeLimiter{err: errors.New("redis down")}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.limiter, 10, time.Minute)(okHandler())
			r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
			r.RemoteAddr = "203.0.113.9:4242"
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "198.51.100.7:1234", nil, "198.51.100.7"},
		{"x-forwarded-for single", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
		{"x-forwarded-for chain takes first", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "203.0.113.6"}, "203.0.113.6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("ip = %q, want %q", got, tt.want)
			}
		})
	}
}
