package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo_AuthAndUserAgent(t *testing.T) {
	var gotAuth, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tr, err := NewHTTP(Config{BaseURL: ts.URL, Token: "secret-token"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer tr.Close()

	if _, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/ping"}); err != nil {
		t.Fatalf("do: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotUA != "sluice" {
		t.Errorf("expected sluice user agent, got %q", gotUA)
	}
}

func TestDo_RedirectNotFollowed(t *testing.T) {
	var followed bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/target" {
			followed = true
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/target", http.StatusFound)
	}))
	defer ts.Close()

	tr, err := NewHTTP(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer tr.Close()

	_, err = tr.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/upload"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", statusErr.Code)
	}
	if statusErr.Retriable() {
		t.Error("redirects must be hard errors")
	}
	if followed {
		t.Error("redirect was followed")
	}
}

func TestDo_StatusErrorDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"malformed manifest"}`))
	}))
	defer ts.Close()

	tr, err := NewHTTP(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer tr.Close()

	_, err = tr.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/assemble"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", statusErr.Code)
	}
	if statusErr.Detail == "" {
		t.Error("expected detail from response body")
	}
}

func TestDo_AbsoluteURL(t *testing.T) {
	var hit bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// Base URL points at a dead host; the absolute path must win.
	tr, err := NewHTTP(Config{BaseURL: "http://127.0.0.1:1", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer tr.Close()

	if _, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: ts.URL + "/chunks"}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !hit {
		t.Error("absolute URL was not used")
	}
}

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &StatusError{Code: 429}, true},
		{"503", &StatusError{Code: 503}, true},
		{"400", &StatusError{Code: 400}, false},
		{"302", &StatusError{Code: 302}, false},
		{"network", errors.New("connection reset by peer"), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetriable(tc.err); got != tc.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestNewHTTP_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTP(Config{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}
