package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// commandRunner runs an external command and returns its standard output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s: %w (output: %s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// PipeWire manages PipeWire/JACK port operations through pw-link.
type PipeWire struct {
	run        commandRunner
	pollPeriod time.Duration
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{run: execRunner, pollPeriod: 100 * time.Millisecond}
}

// ListPorts returns all available JACK ports via PipeWire
func (pw *PipeWire) ListPorts(ctx context.Context) ([]string, error) {
	output, err := pw.run(ctx, "pw-link", "-io")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

// ListCaptureSources returns output ports, which is where microphones appear.
func (pw *PipeWire) ListCaptureSources(ctx context.Context) ([]string, error) {
	output, err := pw.run(ctx, "pw-link", "-o")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire capture sources: %w", err)
	}
	return parsePorts(string(output)), nil
}

func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Input ports:") || strings.HasPrefix(line, "Output ports:") {
			continue
		}
		ports = append(ports, line)
	}
	return ports
}

// ValidatePort checks that a port exists exactly once
func (pw *PipeWire) ValidatePort(ctx context.Context, portName string) error {
	if portName == "" {
		return fmt.Errorf("port name is empty")
	}

	ports, err := pw.ListPorts(ctx)
	if err != nil {
		return err
	}

	return validatePortInList(portName, ports)
}

func validatePortInList(portName string, ports []string) error {
	duplicates := findPortDuplicatesInList(portName, ports)
	switch {
	case len(duplicates) == 0:
		return fmt.Errorf("port not found: %s", portName)
	case len(duplicates) > 1:
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}
	return nil
}

// findPortDuplicatesInList finds all ports with exactly the same name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// WaitForPort polls until portName is valid or timeout elapses.
func (pw *PipeWire) WaitForPort(ctx context.Context, portName string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pw.pollPeriod)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = pw.ValidatePort(ctx, portName); lastErr == nil {
			slog.Debug("JACK port found", "port", portName)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for JACK port %s: %w", portName, lastErr)
		case <-ticker.C:
		}
	}
}

// ConnectPortsWithRetry connects two JACK ports, retrying longer for
// application ports that may take a while to appear.
func (pw *PipeWire) ConnectPortsWithRetry(ctx context.Context, sourcePort, destPort string) error {
	maxRetries := 5
	retryDelay := 500 * time.Millisecond
	if isEphemeralPort(sourcePort) {
		maxRetries = 15
		retryDelay = time.Second
	}
	slog.Debug("Connecting ports", "source", sourcePort, "dest", destPort, "retries", maxRetries)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := pw.run(ctx, "pw-link", sourcePort, destPort)
		if err == nil {
			slog.Debug("Connected ports successfully", "source", sourcePort, "dest", destPort, "attempt", attempt)
			return nil
		}
		slog.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", err)

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return fmt.Errorf("failed to connect %s to %s after %d attempts", sourcePort, destPort, maxRetries)
}

// DisconnectPorts disconnects two JACK ports
func (pw *PipeWire) DisconnectPorts(ctx context.Context, sourcePort, destPort string) error {
	if _, err := pw.run(ctx, "pw-link", "-d", sourcePort, destPort); err != nil {
		return fmt.Errorf("failed to disconnect ports: %w", err)
	}
	slog.Debug("Disconnected ports successfully", "source", sourcePort, "dest", destPort)
	return nil
}

// isEphemeralPort determines if a port belongs to an application rather than hardware
func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)

	ephemeralApps := []string{
		"chrome", "firefox", "discord", "zoom", "teams", "slack", "obs",
	}

	for _, app := range ephemeralApps {
		if strings.Contains(lowerPort, app) {
			return true
		}
	}

	return false
}
