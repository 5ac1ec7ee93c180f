package sdspi

import (
	"gopkg.in/ini.v1"
)

// Config holds the tunables the platform layer reads at startup, the way
// an EDS file configures a node (od_parser.go) but scoped to this driver's
// much smaller surface.
type Config struct {
	ClockSlowHz int
	ClockFastHz int
	R1Retries   int
	DataRetries int
	ACMDRetries int
	IdleRetries int
}

// DefaultConfig mirrors the retry caps and clock speeds named in §4 and §5.
func DefaultConfig() *Config {
	return &Config{
		ClockSlowHz: ClockSlow,
		ClockFastHz: ClockFast,
		R1Retries:   r1PollRetries,
		DataRetries: dataTokenRetries,
		ACMDRetries: acmd41Retries,
		IdleRetries: idleRetries,
	}
}

// LoadConfig reads an INI file with a single [sdspi] section, falling back
// to DefaultConfig for any key the file omits.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := ini.Load(filePath)
	if err != nil {
		return nil, err
	}

	section := file.Section("sdspi")
	for _, f := range []struct {
		key  string
		dest *int
	}{
		{"clock_slow_hz", &cfg.ClockSlowHz},
		{"clock_fast_hz", &cfg.ClockFastHz},
		{"r1_retries", &cfg.R1Retries},
		{"data_retries", &cfg.DataRetries},
		{"acmd_retries", &cfg.ACMDRetries},
		{"idle_retries", &cfg.IdleRetries},
	} {
		if key, err := section.GetKey(f.key); err == nil {
			if v, err := key.Int(); err == nil {
				*f.dest = v
			}
		}
	}
	return cfg, nil
}
