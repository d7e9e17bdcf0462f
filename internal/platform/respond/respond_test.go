package respond

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"

	appmiddleware "github.com/janisto/status-backend/internal/platform/middleware"
)

// testProblem lists every key a problem body may carry.
type testProblem struct {
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func varySet(h http.Header) map[string]int {
	set := make(map[string]int)
	for _, v := range h.Values("Vary") {
		for part := range strings.SplitSeq(v, ",") {
			set[strings.TrimSpace(part)]++
		}
	}
	return set
}

func TestNotFoundHandlerReturnsProblemDetails(t *testing.T) {
	router := chi.NewRouter()
	router.NotFound(NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected application/problem+json, got %q", ct)
	}
	if link := resp.Header().Get("Link"); link != "" {
		t.Fatalf("expected no Link header, got %q", link)
	}

	var p testProblem
	if err := json.Unmarshal(resp.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal problem: %v", err)
	}
	if p.Status != http.StatusNotFound || p.Title != "Not Found" || p.Detail != "resource not found" {
		t.Fatalf("unexpected problem: %+v", p)
	}
	var raw map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to unmarshal problem: %v", err)
	}
	if _, ok := raw["$schema"]; ok {
		t.Fatalf("expected no $schema key, got %v", raw)
	}
}

func TestMethodNotAllowedHandlerReturnsProblemDetails(t *testing.T) {
	router := chi.NewRouter()
	router.MethodNotAllowed(MethodNotAllowedHandler())
	router.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/status", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", method, resp.Code)
		}
		if allow := resp.Header().Get("Allow"); allow != http.MethodGet {
			t.Fatalf("%s: expected Allow GET, got %q", method, allow)
		}

		var p huma.ErrorModel
		if err := json.Unmarshal(resp.Body.Bytes(), &p); err != nil {
			t.Fatalf("failed to unmarshal problem: %v", err)
		}
		if p.Title != "Method Not Allowed" || !strings.Contains(p.Detail, method) {
			t.Fatalf("%s: unexpected problem: %+v", method, p)
		}
	}
}

func TestMethodNotAllowedListsEveryRegisteredMethod(t *testing.T) {
	router := chi.NewRouter()
	router.MethodNotAllowed(MethodNotAllowedHandler())
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	router.Get("/multi", ok)
	router.Post("/multi", ok)
	router.Delete("/multi", ok)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPatch, "/multi", nil))

	if allow := resp.Header().Get("Allow"); allow != "GET, POST, DELETE" {
		t.Fatalf("expected Allow 'GET, POST, DELETE', got %q", allow)
	}
}

func TestAllowedMethodsNilRouteContext(t *testing.T) {
	if methods := allowedMethods(httptest.NewRequest(http.MethodGet, "/status", nil)); methods != nil {
		t.Fatalf("expected nil without chi route context, got %v", methods)
	}
}

func TestRecovererReturnsProblemDetails(t *testing.T) {
	router := chi.NewRouter()
	router.Use(appmiddleware.RequestID(), Recoverer())
	api := humachi.New(router, huma.DefaultConfig("Test", "test"))
	huma.Get(api, "/panic", func(context.Context, *struct{}) (*struct{}, error) {
		panic("boom")
	})
	router.Get("/panic-error", func(http.ResponseWriter, *http.Request) {
		panic(errors.New("wrapped error"))
	})
	router.Get("/panic-int", func(http.ResponseWriter, *http.Request) {
		panic(42)
	})

	for _, path := range []string{"/panic", "/panic-error", "/panic-int"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))

		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: expected application/problem+json, got %q", path, ct)
		}
		var p huma.ErrorModel
		if err := json.Unmarshal(resp.Body.Bytes(), &p); err != nil {
			t.Fatalf("%s: failed to unmarshal problem: %v", path, err)
		}
		if p.Title != "Internal Server Error" || p.Detail != "internal server error" {
			t.Fatalf("%s: unexpected problem: %+v", path, p)
		}
	}
}

func TestRecovererRePanicsOnErrAbortHandler(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Recoverer())
	router.Get("/abort", func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("expected http.ErrAbortHandler to be re-panicked, got %v", err)
		}
	}()

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	t.Fatal("expected panic to propagate, but handler returned normally")
}

func TestRecovererSkipsWriteWhenHeaderAlreadyWritten(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Recoverer())
	router.Get("/partial", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial response"))
		panic("panic after write")
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/partial", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected original 200 status to be preserved, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "partial response" {
		t.Fatalf("expected original body to be preserved, got %q", body)
	}
}

func TestResponseWriterTracksHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec}
	if rw.wroteHeader {
		t.Fatal("expected wroteHeader to be false initially")
	}
	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("unexpected write result: %d, %v", n, err)
	}
	if !rw.wroteHeader {
		t.Fatal("expected wroteHeader to be true after Write")
	}
	if rw.Unwrap() != rec {
		t.Fatal("expected Unwrap to return underlying ResponseWriter")
	}
}

func TestProblemCBORWhenAccepted(t *testing.T) {
	router := chi.NewRouter()
	router.NotFound(NotFoundHandler())
	router.MethodNotAllowed(MethodNotAllowedHandler())
	router.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/missing", http.StatusNotFound},
		{http.MethodPost, "/status", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("Accept", "application/cbor")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != tt.status {
			t.Fatalf("expected %d, got %d", tt.status, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != "application/problem+cbor" {
			t.Fatalf("expected application/problem+cbor, got %q", ct)
		}
		var p huma.ErrorModel
		if err := cbor.Unmarshal(resp.Body.Bytes(), &p); err != nil {
			t.Fatalf("failed to unmarshal CBOR problem: %v", err)
		}
		if p.Status != tt.status || p.Title != http.StatusText(tt.status) {
			t.Fatalf("unexpected CBOR problem: %+v", p)
		}
	}
}

func TestVaryHeaderMerging(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     []string
	}{
		{"empty", nil, []string{"Origin", "Accept"}},
		{"separate line", []string{"Accept-Encoding"}, []string{"Accept-Encoding", "Origin", "Accept"}},
		{"comma separated", []string{"Accept-Encoding, Accept-Language"}, []string{"Accept-Encoding", "Accept-Language", "Origin", "Accept"}},
		{"already present", []string{"Accept", "origin"}, []string{"Accept", "origin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for _, v := range tt.existing {
					w.Header().Add("Vary", v)
				}
				NotFoundHandler().ServeHTTP(w, r)
			})
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/missing", nil))

			set := varySet(resp.Header())
			for _, v := range tt.want {
				if set[v] != 1 {
					t.Fatalf("expected %q exactly once in Vary, got %v", v, resp.Header().Values("Vary"))
				}
			}
			if len(set) != len(tt.want) {
				t.Fatalf("expected %d Vary entries, got %v", len(tt.want), set)
			}
		})
	}
}

func TestEnsureVaryNoValues(t *testing.T) {
	h := make(http.Header)
	ensureVary(h)
	if len(h.Values("Vary")) != 0 {
		t.Fatalf("expected no Vary header, got %v", h.Values("Vary"))
	}

	ensureVary(h, "Accept", "Accept", "Origin")
	if set := varySet(h); set["Accept"] != 1 || set["Origin"] != 1 {
		t.Fatalf("expected Accept and Origin once each, got %v", set)
	}
}

func TestJSONProblemHasNoHTMLEscaping(t *testing.T) {
	payload, err := marshalJSON(problem{Status: http.StatusNotFound, Detail: "<x> & y"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if body := string(payload); strings.Contains(body, `\u003c`) || !strings.Contains(body, "<x> & y") {
		t.Fatalf("response should not be HTML-escaped: %s", body)
	}
}
