package model

// AppConfig holds service-wide preferences and the default nesting parameters
// applied to requests that omit them.
type AppConfig struct {
	// Server settings
	ListenAddr  string   `json:"listen_addr"`
	CORSOrigins []string `json:"cors_origins"`
	Workers     int      `json:"workers"`     // 0 = number of CPUs
	QueueSize   int      `json:"queue_size"`  // Requests waiting for a worker before rejecting
	RunTimeout  int      `json:"run_timeout"` // seconds, 0 = no limit
	JobDBPath   string   `json:"job_db_path"` // empty = job history disabled

	// Logging
	LogLevel  string `json:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `json:"log_format"` // "text" or "json"

	// Default nesting parameters
	DefaultSpacing          float64 `json:"default_spacing"`
	DefaultRotationStep     float64 `json:"default_rotation_step"`
	DefaultSheetWidth       float64 `json:"default_sheet_width"`
	DefaultSheetHeight      float64 `json:"default_sheet_height"`
	DefaultMaxNoImprovement int     `json:"default_max_no_improvement"`
	DefaultSeed             int64   `json:"default_seed"`
}

// DefaultAppConfig returns an AppConfig populated with sensible defaults
// matching the values from DefaultNestingConfig().
func DefaultAppConfig() AppConfig {
	defaults := DefaultNestingConfig()
	return AppConfig{
		ListenAddr:              ":8080",
		CORSOrigins:             []string{"http://localhost:5173"},
		Workers:                 0,
		QueueSize:               16,
		RunTimeout:              120,
		JobDBPath:               "",
		LogLevel:                "info",
		LogFormat:               "text",
		DefaultSpacing:          defaults.Spacing,
		DefaultRotationStep:     defaults.RotationStep,
		DefaultSheetWidth:       defaults.SheetWidth,
		DefaultSheetHeight:      defaults.SheetHeight,
		DefaultMaxNoImprovement: defaults.MaxNoImprovement,
		DefaultSeed:             defaults.Seed,
	}
}

// ApplyDefaults fills zero-valued fields of a request config from the saved
// defaults. Spacing and rotation step are left alone because zero is a valid
// explicit choice for both.
func (c AppConfig) ApplyDefaults(cfg *NestingConfig) {
	if cfg.SheetWidth == 0 {
		cfg.SheetWidth = c.DefaultSheetWidth
	}
	if cfg.SheetHeight == 0 {
		cfg.SheetHeight = c.DefaultSheetHeight
	}
	if cfg.MaxNoImprovement == 0 {
		cfg.MaxNoImprovement = c.DefaultMaxNoImprovement
	}
	if cfg.Seed == 0 {
		cfg.Seed = c.DefaultSeed
	}
}

// NestingDefaults returns the saved defaults as a complete NestingConfig.
func (c AppConfig) NestingDefaults() NestingConfig {
	return NestingConfig{
		Spacing:          c.DefaultSpacing,
		RotationStep:     c.DefaultRotationStep,
		SheetWidth:       c.DefaultSheetWidth,
		SheetHeight:      c.DefaultSheetHeight,
		MaxNoImprovement: c.DefaultMaxNoImprovement,
		Seed:             c.DefaultSeed,
	}
}
