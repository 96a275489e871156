package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	inherited       = "inherited"
	profileSpecific = "profile-specific"
	defaultProfile  = "default"
)

type RootConfig struct {
	ActiveConfig             string             `mapstructure:"active_config" yaml:"active_config"`
	Configs                  map[string]*Config `mapstructure:"configs" yaml:"configs"`
	SupportedAudioExtensions []string           `mapstructure:"supported_audio_extensions" yaml:"supported_audio_extensions"`
}

type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`

	// Extensions the registry treats as recordings when scanning.
	Extensions []string `mapstructure:"-" yaml:"extensions"`

	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type InheritanceInfo struct {
	Audio struct {
		SampleRate     string
		Channels       string
		Backend        string
		CaptureSources string
	}
	Output struct {
		Directory  string
		IndexFile  string
		Format     string
		FilePrefix string
	}
	Playback struct {
		Players      string
		TickInterval string
	}
}

type AudioConfig struct {
	SampleRate     int      `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels       int      `mapstructure:"channels" yaml:"channels"`               // 1=mono, 2=stereo
	Backend        string   `mapstructure:"backend" yaml:"backend"`                 // "pipewire", "auto"
	CaptureSources []string `mapstructure:"capture_sources" yaml:"capture_sources"` // mono=[source], stereo=[left,right]
}

type OutputConfig struct {
	Directory  string `mapstructure:"directory" yaml:"directory"`
	IndexFile  string `mapstructure:"index_file" yaml:"index_file"`
	Format     string `mapstructure:"format" yaml:"format"`
	FilePrefix string `mapstructure:"file_prefix" yaml:"file_prefix"`
}

type PlaybackConfig struct {
	Players      []string      `mapstructure:"players" yaml:"players"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

var supportedFormats = map[string]bool{"wav": true, "flac": true, "mp3": true}

var supportedPlayers = map[string]bool{"ffplay": true, "mpv": true, "vlc": true, "aplay": true}

var defaultExtensions = []string{"wav", "flac", "mp3"}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	dataDir := filepath.Join(userDataDir(), "dictaphone")
	cfg := &Config{
		Audio: AudioConfig{
			SampleRate:     48000,
			Channels:       1,
			Backend:        "auto",
			CaptureSources: []string{"system:capture_1"},
		},
		Output: OutputConfig{
			Directory:  filepath.Join(dataDir, "recordings"),
			IndexFile:  filepath.Join(dataDir, "recordings.yaml"),
			Format:     "wav",
			FilePrefix: "Recording",
		},
		Playback: PlaybackConfig{
			Players:      []string{"ffplay", "mpv", "vlc", "aplay"},
			TickInterval: time.Second,
		},
		Extensions: append([]string(nil), defaultExtensions...),
	}
	return cfg
}

// LoadWithProfile reads configFile, resolves the requested profile (or the
// active one) over the default profile and built-in values, and validates it.
// A missing file yields the built-in defaults unless required is set.
func LoadWithProfile(configFile, profile string, required bool) (*Config, error) {
	if configFile == "" {
		if required {
			return nil, fmt.Errorf("no config file specified, use --config flag")
		}
		return finalize(mergeConfigs(Default(), nil), nil)
	}

	if _, err := os.Stat(configFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return finalize(mergeConfigs(Default(), nil), nil)
		}
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = defaultProfile
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists {
		if configName != defaultProfile || len(rootConfig.Configs) > 0 {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selected = &Config{}
	}

	// Built-in values first, then the default profile, then the selected one
	base := Default()
	if configName != defaultProfile {
		if def, ok := rootConfig.Configs[defaultProfile]; ok {
			base = mergeConfigs(base, def)
		}
	}

	return finalize(mergeConfigs(base, selected), rootConfig)
}

// ReadRootConfig parses the configuration file without resolving a profile.
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("DICTAPHONE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &rootConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if _, ok := v.GetStringMap("configs")[newActiveConfig]; !ok && newActiveConfig != defaultProfile {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

func finalize(cfg *Config, root *RootConfig) (*Config, error) {
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Output.IndexFile = expandPath(cfg.Output.IndexFile)

	// Index defaults to a sibling of the recordings directory
	if cfg.Output.IndexFile == "" {
		cfg.Output.IndexFile = filepath.Join(filepath.Dir(cfg.Output.Directory), "recordings.yaml")
	}

	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))

	cfg.Extensions = append([]string(nil), defaultExtensions...)
	if root != nil && len(root.SupportedAudioExtensions) > 0 {
		cfg.Extensions = cfg.Extensions[:0]
		for _, ext := range root.SupportedAudioExtensions {
			cfg.Extensions = append(cfg.Extensions, strings.TrimPrefix(strings.ToLower(ext), "."))
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// mergeConfigs overlays the non-zero values of profile onto base and records
// which values came from where.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}

	if base != nil {
		result.Audio = base.Audio
		result.Audio.CaptureSources = append([]string(nil), base.Audio.CaptureSources...)
		result.Output = base.Output
		result.Playback = base.Playback
		result.Playback.Players = append([]string(nil), base.Playback.Players...)

		// Mark as inherited by default
		result.Inheritance.Audio.SampleRate = inherited
		result.Inheritance.Audio.Channels = inherited
		result.Inheritance.Audio.Backend = inherited
		result.Inheritance.Audio.CaptureSources = inherited
		result.Inheritance.Output.Directory = inherited
		result.Inheritance.Output.IndexFile = inherited
		result.Inheritance.Output.Format = inherited
		result.Inheritance.Output.FilePrefix = inherited
		result.Inheritance.Playback.Players = inherited
		result.Inheritance.Playback.TickInterval = inherited
	}

	if profile == nil {
		return result
	}

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		result.Inheritance.Audio.SampleRate = profileSpecific
	}
	if profile.Audio.Channels != 0 {
		result.Audio.Channels = profile.Audio.Channels
		result.Inheritance.Audio.Channels = profileSpecific
	}
	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		result.Inheritance.Audio.Backend = profileSpecific
	}
	if len(profile.Audio.CaptureSources) > 0 {
		result.Audio.CaptureSources = append([]string(nil), profile.Audio.CaptureSources...)
		result.Inheritance.Audio.CaptureSources = profileSpecific
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = profileSpecific
		// A relocated directory takes its index along unless one is given
		if profile.Output.IndexFile == "" {
			result.Output.IndexFile = ""
		}
	}
	if profile.Output.IndexFile != "" {
		result.Output.IndexFile = profile.Output.IndexFile
		result.Inheritance.Output.IndexFile = profileSpecific
	}
	if profile.Output.Format != "" {
		result.Output.Format = profile.Output.Format
		result.Inheritance.Output.Format = profileSpecific
	}
	if profile.Output.FilePrefix != "" {
		result.Output.FilePrefix = profile.Output.FilePrefix
		result.Inheritance.Output.FilePrefix = profileSpecific
	}

	if len(profile.Playback.Players) > 0 {
		result.Playback.Players = append([]string(nil), profile.Playback.Players...)
		result.Inheritance.Playback.Players = profileSpecific
	}
	if profile.Playback.TickInterval != 0 {
		result.Playback.TickInterval = profile.Playback.TickInterval
		result.Inheritance.Playback.TickInterval = profileSpecific
	}

	return result
}

// Validate checks a resolved configuration.
func Validate(cfg *Config) error {
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", cfg.Audio.SampleRate)
	}

	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 (mono) or 2 (stereo), got: %d", cfg.Audio.Channels)
	}

	backend := strings.ToLower(cfg.Audio.Backend)
	if backend != "" && backend != "pipewire" && backend != "auto" {
		return fmt.Errorf("audio.backend must be 'pipewire' or 'auto', got: %s", cfg.Audio.Backend)
	}

	// Validate sources count matches channel count
	if len(cfg.Audio.CaptureSources) != cfg.Audio.Channels {
		return fmt.Errorf("audio.capture_sources must have exactly %d source(s) for %d channel(s), got %d",
			cfg.Audio.Channels, cfg.Audio.Channels, len(cfg.Audio.CaptureSources))
	}
	for i, source := range cfg.Audio.CaptureSources {
		if !isValidAudioSource(source) {
			return fmt.Errorf("audio.capture_sources[%d] must be a valid audio source (JACK port), got: %s", i, source)
		}
	}

	if cfg.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	if !supportedFormats[cfg.Output.Format] {
		return fmt.Errorf("output.format must be one of wav, flac, mp3, got: %s", cfg.Output.Format)
	}
	if strings.ContainsAny(cfg.Output.FilePrefix, `/\`) {
		return fmt.Errorf("output.file_prefix must not contain path separators, got: %s", cfg.Output.FilePrefix)
	}
	if filepath.Clean(cfg.Output.IndexFile) == filepath.Clean(cfg.Output.Directory) {
		return fmt.Errorf("output.index_file must not be the recordings directory")
	}

	if len(cfg.Playback.Players) == 0 {
		return fmt.Errorf("playback.players cannot be empty")
	}
	for i, player := range cfg.Playback.Players {
		if !supportedPlayers[player] {
			return fmt.Errorf("playback.players[%d] must be one of ffplay, mpv, vlc, aplay, got: %s", i, player)
		}
	}
	if cfg.Playback.TickInterval <= 0 {
		return fmt.Errorf("playback.tick_interval must be > 0, got: %s", cfg.Playback.TickInterval)
	}

	return nil
}

// expandPath resolves ~/ and relative paths so stored file paths do not
// depend on the working directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, path[2:])
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(homeDir, ".local", "share")
}

// isValidAudioSource checks if a source name is valid for JACK/PipeWire
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)
	if source == "" {
		return false
	}

	if !strings.Contains(source, ":") {
		// Device name without colon (not recommended for JACK/PipeWire)
		return true
	}

	// Device names may contain colons, so the port is whatever follows the last one
	lastColonIndex := strings.LastIndex(source, ":")
	deviceName := strings.TrimSpace(source[:lastColonIndex])
	port := strings.TrimSpace(source[lastColonIndex+1:])

	return len(deviceName) > 0 && len(port) > 0
}
