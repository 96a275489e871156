// Package permission checks and requests the capabilities a recording needs:
// access to a capture source and write access to the recordings directory.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/faults"
	"github.com/spf13/afero"
)

// Status is the outcome of a check or request.
type Status int

const (
	Denied Status = iota
	Granted
)

func (s Status) String() string {
	if s == Granted {
		return "granted"
	}
	return "denied"
}

// Checker reports and requests microphone and storage access.
type Checker interface {
	CheckMicrophone(ctx context.Context) (Status, error)
	RequestMicrophone(ctx context.Context) (Status, error)
	CheckStorageWrite(ctx context.Context) (Status, error)
	RequestStorageWrite(ctx context.Context) (Status, error)
}

// Ensure makes sure both capabilities are granted, requesting each one that
// is not. A capability still denied after its request yields an error marked
// faults.ErrPermissionDenied.
func Ensure(ctx context.Context, c Checker) error {
	if err := ensureOne(ctx, "microphone", c.CheckMicrophone, c.RequestMicrophone); err != nil {
		return err
	}
	return ensureOne(ctx, "storage", c.CheckStorageWrite, c.RequestStorageWrite)
}

func ensureOne(ctx context.Context, what string, check, request func(context.Context) (Status, error)) error {
	status, err := check(ctx)
	if err == nil && status == Granted {
		return nil
	}
	if err != nil {
		slog.Debug("Permission check failed", "capability", what, "error", err)
	}

	slog.Debug("Requesting permission", "capability", what)
	status, err = request(ctx)
	if err != nil {
		return faults.Wrap(faults.ErrPermissionDenied, "permission", what, "request failed", err)
	}
	if status != Granted {
		return faults.Wrap(faults.ErrPermissionDenied, "permission", what, "access denied", nil)
	}
	return nil
}

// PortLister is the part of the PipeWire client the microphone check needs.
type PortLister interface {
	ValidatePort(ctx context.Context, portName string) error
	WaitForPort(ctx context.Context, portName string, timeout time.Duration) error
}

// System checks the real desktop: capture ports through PipeWire and the
// recordings directory through the filesystem.
type System struct {
	Fs          afero.Fs
	Ports       PortLister
	Sources     []string
	Dir         string
	WaitTimeout time.Duration
}

// CheckMicrophone reports whether every configured capture source is present.
func (s *System) CheckMicrophone(ctx context.Context) (Status, error) {
	if len(s.Sources) == 0 {
		return Denied, fmt.Errorf("no capture sources configured")
	}
	for _, source := range s.Sources {
		if err := s.Ports.ValidatePort(ctx, source); err != nil {
			return Denied, err
		}
	}
	return Granted, nil
}

// RequestMicrophone waits for the capture sources to appear.
func (s *System) RequestMicrophone(ctx context.Context) (Status, error) {
	timeout := s.WaitTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	for _, source := range s.Sources {
		if err := s.Ports.WaitForPort(ctx, source, timeout); err != nil {
			slog.Warn("Capture source unavailable", "source", source, "error", err)
			return Denied, nil
		}
	}
	return s.CheckMicrophone(ctx)
}

// CheckStorageWrite reports whether a file can be created in the recordings directory.
func (s *System) CheckStorageWrite(ctx context.Context) (Status, error) {
	info, err := s.Fs.Stat(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Denied, nil
		}
		return Denied, err
	}
	if !info.IsDir() {
		return Denied, fmt.Errorf("%s is not a directory", s.Dir)
	}

	probe, err := afero.TempFile(s.Fs, s.Dir, ".write-check-*")
	if err != nil {
		return Denied, nil
	}
	name := probe.Name()
	probe.Close()
	if err := s.Fs.Remove(name); err != nil {
		slog.Debug("Failed to remove write probe", "file", filepath.Base(name), "error", err)
	}
	return Granted, nil
}

// RequestStorageWrite creates the recordings directory when it is missing.
func (s *System) RequestStorageWrite(ctx context.Context) (Status, error) {
	if err := s.Fs.MkdirAll(s.Dir, 0755); err != nil {
		return Denied, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return s.CheckStorageWrite(ctx)
}

// Static answers every check and request from fixed values.
type Static struct {
	Microphone Status
	Storage    Status

	// GrantOnRequest makes a request succeed even when the check was denied.
	GrantOnRequest bool
}

// AllowAll grants everything.
func AllowAll() *Static {
	return &Static{Microphone: Granted, Storage: Granted}
}

func (s *Static) CheckMicrophone(ctx context.Context) (Status, error) {
	return s.Microphone, nil
}

func (s *Static) RequestMicrophone(ctx context.Context) (Status, error) {
	if s.GrantOnRequest {
		s.Microphone = Granted
	}
	return s.Microphone, nil
}

func (s *Static) CheckStorageWrite(ctx context.Context) (Status, error) {
	return s.Storage, nil
}

func (s *Static) RequestStorageWrite(ctx context.Context) (Status, error) {
	if s.GrantOnRequest {
		s.Storage = Granted
	}
	return s.Storage, nil
}
