package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" json:"default_level"` // level for modules without an override
	Format       string            `yaml:"format" json:"format"`               // console format: "text" or "json"
	Timezone     string            `yaml:"timezone" json:"timezone"`           // "Local", "UTC" or an IANA name
	FilePath     string            `yaml:"file_path" json:"file_path"`         // optional JSON log file, empty disables
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels"` // per-module log levels
}

const (
	DefaultLogLevel = "info"
	FormatText      = "text"
	FormatJSON      = "json"
)

func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Format == "" {
		cfg.Format = FormatText
	}
}
