package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/faults"
	"github.com/spf13/afero"
)

type fakePorts struct {
	present map[string]bool
	waited  []string
	appear  bool
}

func (f *fakePorts) ValidatePort(ctx context.Context, portName string) error {
	if f.present[portName] {
		return nil
	}
	return errors.New("port not found: " + portName)
}

func (f *fakePorts) WaitForPort(ctx context.Context, portName string, timeout time.Duration) error {
	f.waited = append(f.waited, portName)
	if f.appear {
		f.present[portName] = true
		return nil
	}
	return errors.New("timeout waiting for JACK port " + portName)
}

func TestEnsure(t *testing.T) {
	tests := []struct {
		name    string
		checker *Static
		wantErr bool
	}{
		{"all granted", AllowAll(), false},
		{"microphone denied", &Static{Microphone: Denied, Storage: Granted}, true},
		{"storage denied", &Static{Microphone: Granted, Storage: Denied}, true},
		{"granted on request", &Static{Microphone: Denied, Storage: Denied, GrantOnRequest: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Ensure(context.Background(), tt.checker)
			if tt.wantErr {
				if !errors.Is(err, faults.ErrPermissionDenied) {
					t.Errorf("Expected ErrPermissionDenied, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestSystem_Microphone(t *testing.T) {
	ports := &fakePorts{present: map[string]bool{"system:capture_1": true}}
	sys := &System{Fs: afero.NewMemMapFs(), Ports: ports, Sources: []string{"system:capture_1"}, Dir: "/rec"}

	status, err := sys.CheckMicrophone(context.Background())
	if err != nil || status != Granted {
		t.Fatalf("Expected granted, got %s (%v)", status, err)
	}

	sys.Sources = []string{"usb:capture_1"}
	if status, _ := sys.CheckMicrophone(context.Background()); status != Denied {
		t.Errorf("Expected denied for a missing source")
	}

	status, err = sys.RequestMicrophone(context.Background())
	if err != nil || status != Denied {
		t.Errorf("Expected denied after failed wait, got %s (%v)", status, err)
	}

	ports.appear = true
	status, err = sys.RequestMicrophone(context.Background())
	if err != nil || status != Granted {
		t.Errorf("Expected granted once the port appears, got %s (%v)", status, err)
	}
	if len(ports.waited) != 2 {
		t.Errorf("Expected 2 waits, got %v", ports.waited)
	}
}

func TestSystem_NoSources(t *testing.T) {
	sys := &System{Fs: afero.NewMemMapFs(), Ports: &fakePorts{}, Dir: "/rec"}
	if status, err := sys.CheckMicrophone(context.Background()); status != Denied || err == nil {
		t.Errorf("Expected denied with error, got %s (%v)", status, err)
	}
}

func TestSystem_Storage(t *testing.T) {
	fs := afero.NewMemMapFs()
	sys := &System{Fs: fs, Ports: &fakePorts{}, Dir: "/data/recordings"}

	status, err := sys.CheckStorageWrite(context.Background())
	if err != nil || status != Denied {
		t.Fatalf("Expected denied for a missing directory, got %s (%v)", status, err)
	}

	status, err = sys.RequestStorageWrite(context.Background())
	if err != nil || status != Granted {
		t.Fatalf("Expected granted after request, got %s (%v)", status, err)
	}
	if ok, _ := afero.DirExists(fs, "/data/recordings"); !ok {
		t.Error("Expected recordings directory to be created")
	}

	entries, _ := afero.ReadDir(fs, "/data/recordings")
	if len(entries) != 0 {
		t.Errorf("Expected write probe to be cleaned up, found %d entries", len(entries))
	}
}

func TestSystem_StorageReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/rec", 0755); err != nil {
		t.Fatal(err)
	}
	sys := &System{Fs: afero.NewReadOnlyFs(base), Ports: &fakePorts{}, Dir: "/rec"}

	if status, _ := sys.CheckStorageWrite(context.Background()); status != Denied {
		t.Errorf("Expected denied on a read-only filesystem")
	}
	if err := Ensure(context.Background(), &combined{mic: AllowAll(), storage: sys}); !errors.Is(err, faults.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got: %v", err)
	}
}

// combined takes microphone answers from one checker and storage from another
type combined struct {
	mic     Checker
	storage Checker
}

func (c *combined) CheckMicrophone(ctx context.Context) (Status, error) {
	return c.mic.CheckMicrophone(ctx)
}

func (c *combined) RequestMicrophone(ctx context.Context) (Status, error) {
	return c.mic.RequestMicrophone(ctx)
}

func (c *combined) CheckStorageWrite(ctx context.Context) (Status, error) {
	return c.storage.CheckStorageWrite(ctx)
}

func (c *combined) RequestStorageWrite(ctx context.Context) (Status, error) {
	return c.storage.RequestStorageWrite(ctx)
}
