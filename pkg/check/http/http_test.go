package http

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/check/checktest"
)

func startServer(t *testing.T, handler http.HandlerFunc) *checktest.Env {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	env := checktest.NewEnv()
	env.Instance.URL = srv.URL + "/"
	return env
}

func TestNew_Defaults(t *testing.T) {
	chk, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chk.Type() != "http" {
		t.Errorf("expected type 'http', got %q", chk.Type())
	}
	if chk.timeout != DefaultTimeout || chk.status != DefaultStatus || !chk.skipVerify {
		t.Errorf("unexpected defaults %+v", chk)
	}
}

func TestNew_WithTimeout(t *testing.T) {
	chk, err := New(WithTimeout(5 * time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chk.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", chk.timeout)
	}
}

func TestNew_WithSkipVerify(t *testing.T) {
	chk, err := New(WithSkipVerify(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chk.skipVerify {
		t.Error("expected skipVerify false")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero timeout", WithTimeout(0)},
		{"no paths", WithPaths()},
		{"relative path", WithPaths("system/console")},
		{"bad status", WithStatus(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_OK(t *testing.T) {
	var gotPath atomic.Value
	env := startServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
	})
	chk, _ := New()

	res, err := env.Run(chk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, got %q", res.Status)
	}
	if got := gotPath.Load(); got != DefaultPath {
		t.Errorf("expected request to %s, got %v", DefaultPath, got)
	}
}

func TestRun_UnexpectedStatus(t *testing.T) {
	env := startServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	chk, _ := New()

	res, _ := env.Run(chk)
	if res.Success || res.Status != "HTTP status (503)" {
		t.Errorf("unexpected result %v %q", res.Success, res.Status)
	}
}

func TestRun_ExpectedStatus(t *testing.T) {
	env := startServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	chk, _ := New(WithStatus(http.StatusUnauthorized), WithPaths("/system/console"))

	res, _ := env.Run(chk)
	if !res.Success {
		t.Errorf("expected success, got %q", res.Status)
	}
}

func TestRun_AllPathsMustAnswer(t *testing.T) {
	env := startServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/b" {
			w.WriteHeader(http.StatusNotFound)
		}
	})
	chk, _ := New(WithPaths("/a", "/b"))

	res, _ := env.Run(chk)
	if res.Success || res.Status != "HTTP status (404)" {
		t.Errorf("unexpected result %v %q", res.Success, res.Status)
	}
}

func TestRun_Credentials(t *testing.T) {
	var (
		mu         sync.Mutex
		user, pass string
	)
	env := startServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		user, pass, _ = r.BasicAuth()
	})
	chk, _ := New(WithCredentials(true))

	env.Run(chk)
	mu.Lock()
	defer mu.Unlock()
	if user != env.Instance.User || pass != env.Instance.Password {
		t.Errorf("expected instance credentials, got %q/%q", user, pass)
	}
}

func TestRun_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	env := checktest.NewEnv()
	env.Instance.URL = srv.URL
	chk, _ := New(WithTimeout(time.Second))

	res, err := env.Run(chk)
	if err != nil {
		t.Fatalf("connection errors are not fatal: %v", err)
	}
	if res.Success || res.Status != "HTTP unavailable" {
		t.Errorf("unexpected result %v %q", res.Success, res.Status)
	}
}

func TestRun_FingerprintFollowsStatus(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusServiceUnavailable)
	env := startServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	})
	chk, _ := New()

	first := env.Group(chk)
	first.Run(t.Context())
	code.Store(http.StatusOK)
	second := env.Group(chk)
	second.Run(t.Context())

	if first.State() == second.State() {
		t.Error("expected fingerprint to change with the status")
	}
}

func TestFactory_MinimalConfig(t *testing.T) {
	chk, err := Factory(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	httpChk := chk.(*Check)
	if httpChk.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", httpChk.timeout)
	}
	if !httpChk.skipVerify {
		t.Error("expected skipVerify to default to true")
	}
}

func TestFactory_FullConfig(t *testing.T) {
	chk, err := Factory(map[string]any{
		"paths":       "/a,/b",
		"status":      "302",
		"timeout":     "5s",
		"skipVerify":  false,
		"credentials": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	httpChk := chk.(*Check)
	if len(httpChk.paths) != 2 || httpChk.status != 302 || httpChk.timeout != 5*time.Second {
		t.Errorf("unexpected config %+v", httpChk)
	}
	if httpChk.skipVerify || !httpChk.credentials {
		t.Errorf("unexpected flags %+v", httpChk)
	}
}

func TestFactory_InvalidTimeout(t *testing.T) {
	_, err := Factory(map[string]any{"timeout": "not-a-duration"})
	if err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestFactory_UnknownKey(t *testing.T) {
	_, err := Factory(map[string]any{"urls": []any{"http://localhost"}})
	if err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestRegistryIntegration(t *testing.T) {
	reg := check.NewRegistry()
	if err := reg.Register(TypeName, Factory); err != nil {
		t.Fatalf("failed to register http: %v", err)
	}

	chk, err := reg.Create("http", map[string]any{"paths": []any{"/system/console"}})
	if err != nil {
		t.Fatalf("failed to create http check: %v", err)
	}
	if chk.Type() != "http" {
		t.Errorf("expected type 'http', got %q", chk.Type())
	}
}

func TestCheckInterface(t *testing.T) {
	var _ check.Check = &Check{}
}
