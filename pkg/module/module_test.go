package module_test

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/mrv/pkg/module"
)

func TestNewInvalidPrefixPanics(t *testing.T) {
	for _, prefix := range []string{"", "api", "/api/v1"} {
		t.Run(prefix, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("New(%q) should panic", prefix)
				}
			}()
			module.New(prefix, http.NewServeMux())
		})
	}
}

func TestRouterDispatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("project " + r.PathValue("id")))
	})

	api := module.New("/api", mux)
	var seen bool
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = true
			next.ServeHTTP(w, r)
		})
	})

	router := module.NewRouter()
	router.Mount(api)
	router.HandleNative("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/api/projects/p1", http.StatusOK, "project p1"},
		{"/api/projects/p1/", http.StatusOK, "project p1"},
		{"/healthz", http.StatusOK, "ok"},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	if !seen {
		t.Error("module middleware did not run")
	}
	if got := router.Prefixes(); !slices.Equal(got, []string{"/api"}) {
		t.Errorf("Prefixes() = %v", got)
	}
}

func TestMountDuplicatePanics(t *testing.T) {
	router := module.NewRouter()
	router.Mount(module.New("/api", http.NewServeMux()))

	defer func() {
		if recover() == nil {
			t.Error("second Mount of /api should panic")
		}
	}()
	router.Mount(module.New("/api", http.NewServeMux()))
}

func TestModuleRootPath(t *testing.T) {
	var got string
	m := module.New("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
	}))

	router := module.NewRouter()
	router.Mount(m)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api", nil))

	if got != "/" {
		t.Errorf("inner path = %q, want /", got)
	}
}
