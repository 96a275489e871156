package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dictaphone.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestMergeConfigs_InheritanceTracking(t *testing.T) {
	base := Default()

	profile := &Config{
		Audio: AudioConfig{
			SampleRate: 44100,
		},
		Output: OutputConfig{
			Directory: "/srv/memos",
			Format:    "flac",
		},
		Playback: PlaybackConfig{
			TickInterval: 500 * time.Millisecond,
		},
	}

	result := mergeConfigs(base, profile)

	if result.Audio.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", result.Audio.SampleRate)
	}
	if result.Audio.Channels != 1 {
		t.Errorf("Expected inherited channels 1, got %d", result.Audio.Channels)
	}
	if result.Output.Directory != "/srv/memos" || result.Output.Format != "flac" {
		t.Errorf("Output overrides not applied: %+v", result.Output)
	}
	if result.Output.FilePrefix != "Recording" {
		t.Errorf("Expected inherited prefix 'Recording', got %s", result.Output.FilePrefix)
	}
	if result.Output.IndexFile != "" {
		t.Errorf("Expected index file to follow relocated directory, got %s", result.Output.IndexFile)
	}
	if result.Playback.TickInterval != 500*time.Millisecond {
		t.Errorf("Expected tick interval 500ms, got %s", result.Playback.TickInterval)
	}

	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	if result.Inheritance.Audio.SampleRate != "profile-specific" {
		t.Errorf("Expected sample rate to be profile-specific, got %s", result.Inheritance.Audio.SampleRate)
	}
	if result.Inheritance.Audio.CaptureSources != "inherited" {
		t.Errorf("Expected capture sources to be inherited, got %s", result.Inheritance.Audio.CaptureSources)
	}
	if result.Inheritance.Output.Format != "profile-specific" {
		t.Errorf("Expected format to be profile-specific, got %s", result.Inheritance.Output.Format)
	}
	if result.Inheritance.Playback.Players != "inherited" {
		t.Errorf("Expected players to be inherited, got %s", result.Inheritance.Playback.Players)
	}
}

func TestMergeConfigs_DoesNotAliasBase(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, nil)

	result.Audio.CaptureSources[0] = "changed:1"
	result.Playback.Players[0] = "vlc"

	if base.Audio.CaptureSources[0] != "system:capture_1" {
		t.Errorf("Base capture sources were modified: %v", base.Audio.CaptureSources)
	}
	if base.Playback.Players[0] != "ffplay" {
		t.Errorf("Base players were modified: %v", base.Playback.Players)
	}
}

func TestLoadWithProfile_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := LoadWithProfile(missing, "", false)
	if err != nil {
		t.Fatalf("Expected defaults for missing optional file, got: %v", err)
	}
	if cfg.Output.Format != "wav" || cfg.Playback.TickInterval != time.Second {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if filepath.Dir(cfg.Output.IndexFile) != filepath.Dir(cfg.Output.Directory) {
		t.Errorf("Expected index beside recordings directory, got %s and %s", cfg.Output.IndexFile, cfg.Output.Directory)
	}

	if _, err := LoadWithProfile(missing, "", true); err == nil {
		t.Error("Expected error for missing required config file")
	}
}

func TestLoadWithProfile_ActiveAndExplicitProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
active_config: studio
configs:
  default:
    output:
      directory: `+filepath.Join(dir, "default")+`
      format: wav
  studio:
    audio:
      channels: 2
      capture_sources: ["Scarlett 2i2 USB: Audio (hw:1,0):0", "Scarlett 2i2 USB: Audio (hw:1,0):1"]
    output:
      format: flac
    playback:
      players: [mpv]
      tick_interval: 250ms
`)

	cfg, err := LoadWithProfile(path, "", true)
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}

	if cfg.Audio.Channels != 2 || len(cfg.Audio.CaptureSources) != 2 {
		t.Errorf("Expected stereo studio profile, got %+v", cfg.Audio)
	}
	if cfg.Output.Format != "flac" {
		t.Errorf("Expected flac, got %s", cfg.Output.Format)
	}
	if cfg.Output.Directory != filepath.Join(dir, "default") {
		t.Errorf("Expected directory inherited from default profile, got %s", cfg.Output.Directory)
	}
	if cfg.Output.IndexFile != filepath.Join(dir, "recordings.yaml") {
		t.Errorf("Unexpected index file: %s", cfg.Output.IndexFile)
	}
	if cfg.Playback.TickInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms tick interval, got %s", cfg.Playback.TickInterval)
	}
	if cfg.Inheritance.Output.Directory != "inherited" {
		t.Errorf("Expected directory to be inherited, got %s", cfg.Inheritance.Output.Directory)
	}

	cfg, err = LoadWithProfile(path, "default", true)
	if err != nil {
		t.Fatalf("LoadWithProfile(default) failed: %v", err)
	}
	if cfg.Output.Format != "wav" || cfg.Audio.Channels != 1 {
		t.Errorf("Expected default profile values, got %+v", cfg)
	}

	if _, err := LoadWithProfile(path, "nope", true); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected profile not found error, got: %v", err)
	}
}

func TestLoadWithProfile_SupportedExtensions(t *testing.T) {
	path := writeConfig(t, `
supported_audio_extensions: [".WAV", "ogg"]
configs:
  default:
    output:
      directory: /tmp/dictaphone-test
`)

	cfg, err := LoadWithProfile(path, "", true)
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if strings.Join(cfg.Extensions, ",") != "wav,ogg" {
		t.Errorf("Expected normalized extensions, got %v", cfg.Extensions)
	}
}

func TestLoadWithProfile_RelativeDirectory(t *testing.T) {
	path := writeConfig(t, `
configs:
  default:
    output:
      directory: ./rec
`)

	cfg, err := LoadWithProfile(path, "", true)
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}

	wd, _ := os.Getwd()
	if cfg.Output.Directory != filepath.Join(wd, "rec") {
		t.Errorf("Expected absolute recordings directory, got %s", cfg.Output.Directory)
	}
	if cfg.Output.IndexFile != filepath.Join(wd, "recordings.yaml") {
		t.Errorf("Expected absolute index file beside the directory, got %s", cfg.Output.IndexFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "sample_rate"},
		{"channels", func(c *Config) { c.Audio.Channels = 3 }, "channels"},
		{"backend", func(c *Config) { c.Audio.Backend = "alsa" }, "backend"},
		{"source count", func(c *Config) { c.Audio.Channels = 2 }, "exactly 2 source(s)"},
		{"empty port", func(c *Config) { c.Audio.CaptureSources = []string{"system:"} }, "capture_sources[0]"},
		{"format", func(c *Config) { c.Output.Format = "ogg" }, "output.format"},
		{"prefix", func(c *Config) { c.Output.FilePrefix = "a/b" }, "file_prefix"},
		{"index is dir", func(c *Config) { c.Output.IndexFile = c.Output.Directory }, "index_file"},
		{"no players", func(c *Config) { c.Playback.Players = nil }, "players cannot be empty"},
		{"unknown player", func(c *Config) { c.Playback.Players = []string{"winamp"} }, "players[0]"},
		{"tick", func(c *Config) { c.Playback.TickInterval = 0 }, "tick_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	path := writeConfig(t, `
active_config: default
configs:
  default:
    output:
      format: wav
  field:
    output:
      format: mp3
`)

	if err := UpdateActiveConfig(path, "field"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}

	root, err := ReadRootConfig(path)
	if err != nil {
		t.Fatalf("ReadRootConfig failed: %v", err)
	}
	if root.ActiveConfig != "field" {
		t.Errorf("Expected active_config 'field', got %s", root.ActiveConfig)
	}

	if err := UpdateActiveConfig(path, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()
	wd, _ := os.Getwd()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Audio/Memos", filepath.Join(homeDir, "Audio", "Memos")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", filepath.Join(wd, "relative", "path")},
		{"./rec/../memos", filepath.Join(wd, "memos")},
		{"", ""},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestIsValidAudioSource(t *testing.T) {
	tests := map[string]bool{
		"system:capture_1":                     true,
		"Scarlett 2i2 USB: Audio (hw:1,0):0":   true,
		"default":                              true,
		"":                                     false,
		"   ":                                  false,
		":capture_1":                           false,
		"system:":                              false,
	}
	for source, want := range tests {
		if got := isValidAudioSource(source); got != want {
			t.Errorf("isValidAudioSource(%q) = %v, want %v", source, got, want)
		}
	}
}
