// Package config holds the process-wide defaults an orchestration binary
// wires into the serial transport and protocol engine, so neither package
// has to hardcode magic numbers. The serial and bootloader packages import
// it only for the Defaults type and the compiled-in values of Load(nil);
// they never read the environment themselves. Only a caller that opts in
// by calling Load with a non-nil *viper.Viper does.
package config

import "github.com/spf13/viper"

const (
	envPrefix = "STM8BOOT"

	defaultBaudRate         = 115200
	defaultTimeoutMS        = 1000
	defaultProbeTimeoutMS   = 100
	defaultSyncAttempts     = 15
	defaultSyncRetryDelayMS = 10
)

// Defaults are the compiled-in fallbacks for everything the engine needs a
// starting value for. A caller may override any field after Load returns;
// these are defaults, not enforced limits.
type Defaults struct {
	BaudRate         uint32
	TimeoutMS        uint32
	ProbeTimeoutMS   uint32
	SyncAttempts     int
	SyncRetryDelayMS int
}

func compiledDefaults() Defaults {
	return Defaults{
		BaudRate:         defaultBaudRate,
		TimeoutMS:        defaultTimeoutMS,
		ProbeTimeoutMS:   defaultProbeTimeoutMS,
		SyncAttempts:     defaultSyncAttempts,
		SyncRetryDelayMS: defaultSyncRetryDelayMS,
	}
}

// Load reads settings from v, an already-configured *viper.Viper (env vars
// prefixed STM8BOOT_, an optional bound config file), falling back to the
// compiled-in defaults for any key v does not have set. Passing a nil v
// returns the compiled-in defaults directly with no error — the path the
// protocol engine's own tests use when they want defaults without touching
// the environment.
func Load(v *viper.Viper) (Defaults, error) {
	d := compiledDefaults()
	if v == nil {
		return d, nil
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("baud", d.BaudRate)
	v.SetDefault("timeout_ms", d.TimeoutMS)
	v.SetDefault("probe_timeout_ms", d.ProbeTimeoutMS)
	v.SetDefault("sync_attempts", d.SyncAttempts)
	v.SetDefault("sync_retry_delay_ms", d.SyncRetryDelayMS)

	d.BaudRate = uint32(v.GetInt64("baud"))
	d.TimeoutMS = uint32(v.GetInt64("timeout_ms"))
	d.ProbeTimeoutMS = uint32(v.GetInt64("probe_timeout_ms"))
	d.SyncAttempts = v.GetInt("sync_attempts")
	d.SyncRetryDelayMS = v.GetInt("sync_retry_delay_ms")
	return d, nil
}
