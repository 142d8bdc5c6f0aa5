package module_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/tally/pkg/module"
)

func TestNewValidatesPrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{"/api", false},
		{"", true},
		{"api", true},
		{"/api/v1", true},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			_, err := module.New(tt.prefix, http.NewServeMux())
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) err = %v, wantErr %v", tt.prefix, err, tt.wantErr)
			}
		})
	}
}

func TestRouterDispatch(t *testing.T) {
	inner := http.NewServeMux()
	inner.HandleFunc("GET /stats/{expId}/versions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("module:" + r.URL.Path + ":" + r.PathValue("expId")))
	})

	m, err := module.New("/api", inner)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Module", "api")
			next.ServeHTTP(w, r)
		})
	})

	router := module.NewRouter()
	if err := router.Mount(m); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	router.HandleNative("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	tests := []struct {
		name       string
		path       string
		wantBody   string
		wantModule string
	}{
		{"module route", "/api/stats/exp_1/versions", "module:/stats/exp_1/versions:exp_1", "api"},
		{"trailing slash", "/api/stats/exp_1/versions/", "module:/stats/exp_1/versions:exp_1", "api"},
		{"native route", "/healthz", "ok", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))

			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("X-Module"); got != tt.wantModule {
				t.Errorf("X-Module = %q, want %q", got, tt.wantModule)
			}
		})
	}
}

func TestRouterLeavesRequestUntouched(t *testing.T) {
	inner := http.NewServeMux()
	inner.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {})

	m, err := module.New("/api", inner)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router := module.NewRouter()
	if err := router.Mount(m); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/stats/", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if req.URL.Path != "/api/stats/" {
		t.Errorf("request path = %q after dispatch, want /api/stats/", req.URL.Path)
	}
}

func TestRouterMount(t *testing.T) {
	router := module.NewRouter()

	for _, prefix := range []string{"/api", "/admin"} {
		m, err := module.New(prefix, http.NewServeMux())
		if err != nil {
			t.Fatalf("New(%s): %v", prefix, err)
		}
		if err := router.Mount(m); err != nil {
			t.Fatalf("Mount(%s): %v", prefix, err)
		}
	}

	dup, _ := module.New("/api", http.NewServeMux())
	if err := router.Mount(dup); !errors.Is(err, module.ErrPrefixMounted) {
		t.Errorf("second Mount(/api) err = %v, want ErrPrefixMounted", err)
	}

	if got := router.Prefixes(); !slices.Equal(got, []string{"/admin", "/api"}) {
		t.Errorf("Prefixes() = %v, want [/admin /api]", got)
	}
}
