package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProber_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/redirected":
			w.WriteHeader(http.StatusNoContent)
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewProber()
	defer p.Close()

	tests := []struct {
		name    string
		path    string
		wantUp  bool
		wantMsg string
	}{
		{"healthy", "/ok", true, "200 OK"},
		{"no content", "/redirected", true, "204 No Content"},
		{"server error", "/down", false, "503 Service Unavailable"},
		{"not found", "/missing", false, "404 Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := p.Probe(context.Background(), srv.URL+tt.path, 5*time.Second)
			if st.Up != tt.wantUp {
				t.Errorf("Up = %v, want %v", st.Up, tt.wantUp)
			}
			if st.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", st.Message, tt.wantMsg)
			}
			if st.Time.IsZero() {
				t.Error("Time is zero")
			}
		})
	}
}

func TestProber_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewProber()
	defer p.Close()

	st := p.Probe(context.Background(), srv.URL, 50*time.Millisecond)
	if st.Up {
		t.Error("Up = true for a timed-out probe")
	}
	if !strings.Contains(st.Message, "timeout after") {
		t.Errorf("Message = %q, want a timeout message", st.Message)
	}
}

func TestProber_Unreachable(t *testing.T) {
	p := NewProber()
	defer p.Close()

	// a closed port fails fast with a transport error
	st := p.Probe(context.Background(), "http://127.0.0.1:1", 2*time.Second)
	if st.Up {
		t.Error("Up = true for an unreachable target")
	}
	if !strings.HasPrefix(st.Message, "error: ") {
		t.Errorf("Message = %q, want an error message", st.Message)
	}
}
