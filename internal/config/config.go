// Package config loads the node's startup configuration into a single
// immutable value, following the teacher's viper-defaults-then-overrides
// pattern (cmd/config in the original Roundtable client).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config is the node's complete startup configuration. It is built once by
// Load and passed by reference to every constructor; nothing below main()
// reads viper directly.
type Config struct {
	Username string

	TCPHost string
	TCPPort int

	BroadcastPort     int
	BroadcastInterval time.Duration
	PeerTimeout       time.Duration
	CleanupInterval   time.Duration

	ConnectionCheckInterval time.Duration
	AudioSendInterval       time.Duration

	// OverlayStreamPort is the fixed stream port Strategy B assumes every
	// overlay peer listens on (spec.md §4.2 Strategy B, §9 open question).
	OverlayStreamPort int
	// OverlayStatusCommand is the executable (and arguments) invoked to
	// enumerate the overlay's peer list (spec.md §6 "overlay agent").
	OverlayStatusCommand []string

	LogLevel string
	LogFile  string

	TargetJitter int
	MinJitter    int
	MaxJitter    int

	AudioDevice string // "portaudio" or "wavfile", see internal/audio/device
	InputFile   string // wavfile capture source, when AudioDevice == "wavfile"
	OutputFile  string // wavfile playback sink, when AudioDevice == "wavfile"
}

func setDefaults() {
	viper.SetDefault("username", "anonymous")

	viper.SetDefault("tcp_host", "0.0.0.0")
	viper.SetDefault("tcp_port", 9876)

	viper.SetDefault("broadcast_port", 9877)
	viper.SetDefault("broadcast_interval", 2*time.Second)
	viper.SetDefault("peer_timeout", 10*time.Second)
	viper.SetDefault("cleanup_interval", 3*time.Second)

	viper.SetDefault("connection_check_interval", 3*time.Second)
	viper.SetDefault("audio_send_interval", 20*time.Millisecond)

	viper.SetDefault("overlay_stream_port", 9876)
	viper.SetDefault("overlay_status_command", []string{"tailscale", "status", "--json"})

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")

	viper.SetDefault("target_jitter", 8)
	viper.SetDefault("min_jitter", 4)
	viper.SetDefault("max_jitter", 20)

	viper.SetDefault("audio_device", "portaudio")
	viper.SetDefault("input_file", "")
	viper.SetDefault("output_file", "")
}

// Load reads configFilePath (if it exists), layers environment variable
// overrides on top (e.g. TCP_PORT, BROADCAST_INTERVAL), and returns the
// resulting immutable Config. A missing config file is not an error: viper
// defaults plus environment variables are enough to run.
func Load(configFilePath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configFilePath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file %q: %w", configFilePath, err)
		}
	}

	cfg := &Config{
		Username: viper.GetString("username"),

		TCPHost: viper.GetString("tcp_host"),
		TCPPort: viper.GetInt("tcp_port"),

		BroadcastPort:     viper.GetInt("broadcast_port"),
		BroadcastInterval: viper.GetDuration("broadcast_interval"),
		PeerTimeout:       viper.GetDuration("peer_timeout"),
		CleanupInterval:   viper.GetDuration("cleanup_interval"),

		ConnectionCheckInterval: viper.GetDuration("connection_check_interval"),
		AudioSendInterval:       viper.GetDuration("audio_send_interval"),

		OverlayStreamPort:    viper.GetInt("overlay_stream_port"),
		OverlayStatusCommand: viper.GetStringSlice("overlay_status_command"),

		LogLevel: viper.GetString("log_level"),
		LogFile:  viper.GetString("log_file"),

		TargetJitter: viper.GetInt("target_jitter"),
		MinJitter:    viper.GetInt("min_jitter"),
		MaxJitter:    viper.GetInt("max_jitter"),

		AudioDevice: viper.GetString("audio_device"),
		InputFile:   viper.GetString("input_file"),
		OutputFile:  viper.GetString("output_file"),
	}

	if cfg.MinJitter < 1 {
		return nil, fmt.Errorf("min_jitter must be >= 1, got %d", cfg.MinJitter)
	}
	if cfg.MaxJitter < cfg.MinJitter {
		return nil, fmt.Errorf("max_jitter (%d) must be >= min_jitter (%d)", cfg.MaxJitter, cfg.MinJitter)
	}

	return cfg, nil
}
