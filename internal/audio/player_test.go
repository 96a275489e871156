package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/config"
)

func lookPathFor(installed ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, p := range installed {
			if p == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestFindAudioPlayer(t *testing.T) {
	tests := []struct {
		name      string
		players   []string
		installed []string
		path      string
		want      string
		wantErr   bool
	}{
		{"first installed wins", []string{"ffplay", "mpv"}, []string{"mpv", "ffplay"}, "a.wav", "ffplay", false},
		{"skips missing", []string{"ffplay", "mpv"}, []string{"mpv"}, "a.wav", "mpv", false},
		{"aplay for wav", []string{"aplay"}, []string{"aplay"}, "a.WAV", "aplay", false},
		{"aplay skipped for flac", []string{"aplay", "vlc"}, []string{"aplay", "vlc"}, "a.flac", "vlc", false},
		{"nothing installed", []string{"ffplay"}, nil, "a.wav", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findAudioPlayer(tt.players, tt.path, lookPathFor(tt.installed...))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got player %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPlayerArgs(t *testing.T) {
	for _, player := range []string{"ffplay", "mpv", "vlc", "aplay"} {
		args, err := playerArgs(player, "/rec/a.wav")
		if err != nil {
			t.Errorf("playerArgs(%s) failed: %v", player, err)
			continue
		}
		if args[len(args)-1] != "/rec/a.wav" {
			t.Errorf("playerArgs(%s) should end with the file, got %v", player, args)
		}
	}
	if _, err := playerArgs("winamp", "a.wav"); err == nil {
		t.Error("Expected error for unsupported player")
	}
}

func TestExecPlayer_StopBeforePlay(t *testing.T) {
	p := NewExecPlayer("ffplay", "/rec/a.wav")

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	select {
	case <-p.Ended():
	case <-time.After(time.Second):
		t.Fatal("Expected Ended to be closed after Stop")
	}

	if err := p.Play(context.Background()); err == nil {
		t.Error("Expected Play after Stop to fail")
	}
	if p.Position() != 0 {
		t.Errorf("Expected zero position for a player that never started")
	}
}

func TestEngineNewPlayer(t *testing.T) {
	cfg := config.Default()
	engine := newPipeWireEngine(cfg, nil)
	engine.lookPath = lookPathFor("mpv")

	player, err := engine.NewPlayer("/rec/a.wav")
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	if ep, ok := player.(*ExecPlayer); !ok || ep.program != "mpv" {
		t.Errorf("Expected mpv exec player, got %#v", player)
	}

	engine.lookPath = lookPathFor()
	if _, err := engine.NewPlayer("/rec/a.wav"); err == nil {
		t.Error("Expected error when no player is installed")
	}
}

func TestEngineNewRecorder_MissingTools(t *testing.T) {
	engine := newPipeWireEngine(config.Default(), nil)
	engine.lookPath = lookPathFor("ffmpeg")

	_, err := engine.NewRecorder()
	if err == nil || !strings.Contains(err.Error(), "pw-jack") {
		t.Errorf("Expected missing pw-jack error, got: %v", err)
	}

	engine.lookPath = lookPathFor("ffmpeg", "pw-jack")
	if _, err := engine.NewRecorder(); err != nil {
		t.Errorf("Expected recorder, got: %v", err)
	}
}

func TestNewEngine(t *testing.T) {
	for _, backend := range []string{"auto", "pipewire", ""} {
		cfg := config.Default()
		cfg.Audio.Backend = backend
		if _, ok := NewEngine(cfg, nil).(*PipeWireEngine); !ok {
			t.Errorf("Expected PipeWire engine for backend %q", backend)
		}
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Channels = 2
	cfg.Audio.SampleRate = 44100
	cfg.Output.Format = "flac"

	args := strings.Join(buildFFmpegArgs(cfg, "/rec/out.flac"), " ")

	for _, want := range []string{"pw-jack ffmpeg", "-f jack", "-channels 2", "-i dictaphone_capture", "-ar 44100", "-c:a flac", "-y /rec/out.flac"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in %q", want, args)
		}
	}
}

func TestCodecFor(t *testing.T) {
	tests := map[string]string{"wav": "pcm_s16le", "flac": "flac", "mp3": "libmp3lame", "": "pcm_s16le"}
	for format, want := range tests {
		if got := codecFor(format); got != want {
			t.Errorf("codecFor(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestParseProbeDuration(t *testing.T) {
	d, err := parseProbeDuration([]byte(`{"format": {"duration": "12.500000"}}`))
	if err != nil {
		t.Fatalf("parseProbeDuration failed: %v", err)
	}
	if d != 12500*time.Millisecond {
		t.Errorf("Expected 12.5s, got %s", d)
	}

	for _, bad := range []string{`{"format": {}}`, `{"format": {"duration": "N/A"}}`, `{"format": {"duration": "abc"}}`, `not json`} {
		if _, err := parseProbeDuration([]byte(bad)); err == nil {
			t.Errorf("Expected error for %s", bad)
		}
	}
}

func TestFFprobe_Probe(t *testing.T) {
	var gotArgs []string
	prober := &FFprobe{run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(`{"format": {"duration": "3.0"}}`), nil
	}}

	d, err := prober.Probe(context.Background(), "/rec/a.wav")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if d != 3*time.Second {
		t.Errorf("Expected 3s, got %s", d)
	}
	if gotArgs[0] != "ffprobe" || gotArgs[len(gotArgs)-1] != "/rec/a.wav" {
		t.Errorf("Unexpected command: %v", gotArgs)
	}
}
