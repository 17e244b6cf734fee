package instance

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestApplyDefaults_LocalInstance(t *testing.T) {
	i := Instance{URL: "http://localhost:4502", Local: true, Dir: "/opt/author"}
	i.ApplyDefaults()

	if i.Env != EnvLocal {
		t.Errorf("expected env %q, got %q", EnvLocal, i.Env)
	}
	if i.ID != "4502" {
		t.Errorf("expected id from port, got %q", i.ID)
	}
	if i.Name != "local-4502" {
		t.Errorf("expected name 'local-4502', got %q", i.Name)
	}
	if i.User != UserDefault || i.Password != PasswordDefault {
		t.Errorf("expected default credentials, got %s/%s", i.User, i.Password)
	}
	if i.Zone == nil {
		t.Error("expected zone to be set")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	i := Instance{Name: "author", URL: "http://author:4502", User: "ci", Password: "secret", Env: "int", ID: "author"}
	i.ApplyDefaults()

	if i.Name != "author" || i.User != "ci" || i.Password != "secret" || i.ID != "author" {
		t.Errorf("explicit values should be preserved, got %+v", i)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		inst    Instance
		wantErr bool
	}{
		{"valid", Instance{Name: "a", URL: "http://localhost:4502"}, false},
		{"no name", Instance{URL: "http://localhost:4502"}, true},
		{"no url", Instance{Name: "a"}, true},
		{"bad scheme", Instance{Name: "a", URL: "ftp://localhost"}, true},
		{"local without dir", Instance{Name: "a", URL: "http://localhost:4502", Local: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.inst.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestControlPortFile(t *testing.T) {
	remote := Instance{Name: "r", URL: "http://r:4502"}
	if remote.ControlPortFile() != "" {
		t.Error("remote instance should have no control port file")
	}

	local := Instance{Name: "l", URL: "http://localhost:4502", Local: true, Dir: "/opt/author"}
	want := filepath.Join("/opt/author", "crx-quickstart", "conf", "controlport")
	if got := local.ControlPortFile(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNames_Sorted(t *testing.T) {
	got := Names([]*Instance{{Name: "publish"}, {Name: "author"}})
	if got != "author, publish" {
		t.Errorf("expected sorted names, got %q", got)
	}
}

func TestFatal(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", Fatal(base))

	if !IsFatal(err) {
		t.Error("expected wrapped fatal error to be fatal")
	}
	if !errors.Is(err, base) {
		t.Error("expected fatal error to unwrap to its cause")
	}
	if IsFatal(base) {
		t.Error("plain error should not be fatal")
	}
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}
}
