// Package config loads the application configuration from
// ~/.config/tactus/tactus.yml (or the working directory), with
// environment variable overrides prefixed TACTUS_.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/engine"
	"github.com/tactus-audio/tactus/seq"
)

type Config struct {
	MIDIInPrefix  string
	MIDIOutPrefix string

	CountInBeats   int
	MinDiskKBAvail uint64
	RecordPath     string

	WarningCooldown  time.Duration
	PreflightTimeout time.Duration
	ResetDebounce    time.Duration

	TickInterval time.Duration
	WindowBars   int

	MetronomeBarVelocity  int
	MetronomeBeatVelocity int
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("tactus")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "tactus"))
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("tactus")
	v.AutomaticEnv()

	v.SetDefault("midi_in_prefix", "")
	v.SetDefault("midi_out_prefix", "")
	v.SetDefault("count_in_beats", 0)
	v.SetDefault("min_disk_kb_avail", 10*1024)
	v.SetDefault("record_path", "")
	v.SetDefault("warning_cooldown", "5s")
	v.SetDefault("preflight_timeout", "500ms")
	v.SetDefault("reset_debounce", "100ms")
	v.SetDefault("tick_interval", "10ms")
	v.SetDefault("window_bars", 4)
	v.SetDefault("metronome_bar_velocity", 120)
	v.SetDefault("metronome_beat_velocity", 80)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}
	return Config{
		MIDIInPrefix:          v.GetString("midi_in_prefix"),
		MIDIOutPrefix:         v.GetString("midi_out_prefix"),
		CountInBeats:          v.GetInt("count_in_beats"),
		MinDiskKBAvail:        v.GetUint64("min_disk_kb_avail"),
		RecordPath:            v.GetString("record_path"),
		WarningCooldown:       v.GetDuration("warning_cooldown"),
		PreflightTimeout:      v.GetDuration("preflight_timeout"),
		ResetDebounce:         v.GetDuration("reset_debounce"),
		TickInterval:          v.GetDuration("tick_interval"),
		WindowBars:            v.GetInt("window_bars"),
		MetronomeBarVelocity:  v.GetInt("metronome_bar_velocity"),
		MetronomeBeatVelocity: v.GetInt("metronome_beat_velocity"),
	}, nil
}

// ManagerSettings converts the configuration into sequence manager
// settings.
func (c Config) ManagerSettings() seq.Settings {
	return seq.Settings{
		CountInBeats:     c.CountInBeats,
		MinDiskKBAvail:   c.MinDiskKBAvail,
		PreflightTimeout: c.PreflightTimeout,
		WarningCooldown:  c.WarningCooldown,
		ResetDebounce:    c.ResetDebounce,
		SliceTicks:       tactus.Time(c.WindowBars) * 4 * tactus.TicksPerQuarter,
	}
}

// EngineOptions converts the configuration into engine options.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		TickInterval: c.TickInterval,
		WindowTicks:  tactus.Time(c.WindowBars) * 4 * tactus.TicksPerQuarter,
		RecordPath:   c.RecordPath,
	}
}
