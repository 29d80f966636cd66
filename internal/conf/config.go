// config.go: settings structure and loading for vitalcam
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix is prepended to environment overrides, e.g. VITALCAM_MQTT_BROKER.
const EnvPrefix = "VITALCAM"

// LogConfig controls process logging.
type LogConfig struct {
	Level        string            // trace, debug, info, warn, error
	Format       string            // text or json console output
	Path         string            // optional JSON log file
	ModuleLevels map[string]string // per-module level overrides
}

// HeartRateSettings tunes the camera pulse estimator.
type HeartRateSettings struct {
	BufferSize      int     // samples kept for analysis, ~5 s at 30 fps
	BandLow         float64 // Hz, lower edge of the cardiac band
	BandHigh        float64 // Hz, upper edge of the cardiac band
	FilterOrder     int     // Butterworth prototype order
	SmoothingWindow int     // moving average length in samples
	FFTSize         int     // zero-padded transform length
	MinPeakToPeak   float64 // raw green range below which a window is flat
	ConfidenceScale float64 // peak/mean power multiplier
	MinBPM          float64 // exclusive lower plausibility bound
	MaxBPM          float64 // exclusive upper plausibility bound
	HistorySize     int     // accepted estimates kept for the median
	MinHistory      int     // accepted estimates needed before reporting
}

// StressSettings tunes the HRV stress analyzer.
type StressSettings struct {
	BufferSize int     // RR intervals kept
	MinSamples int     // RR intervals needed before computing
	MaxBPM     float64 // updates above this are ignored
}

// SpO2Settings tunes the ratio-of-ratios estimator.
type SpO2Settings struct {
	BufferSize       int
	MinDC            float64 // red and blue brightness floor
	SmoothingWindow  int
	MinR             float64
	MaxR             float64
	CalibrationA     float64 // SpO2 = A - B*R
	CalibrationB     float64
	MinSpO2          float64
	MaxSpO2          float64
	Alpha            float64 // exponential smoothing weight of the newest value
	StrongAC         float64 // AC RMS above which a channel is considered strong
	StrongConfidence int
	WeakConfidence   int
}

// FaceLossSettings controls resets when no face is visible.
type FaceLossSettings struct {
	Timeout time.Duration // reset all estimators after this long without a face
}

// SessionSettings controls the session registry.
type SessionSettings struct {
	Idle time.Duration // sessions without frames for this long are dropped
}

// EnabledSettings toggles individual estimators.
type EnabledSettings struct {
	HeartRate bool
	Stress    bool
	SpO2      bool
}

// VitalsSettings groups all estimator settings.
type VitalsSettings struct {
	HeartRate HeartRateSettings
	Stress    StressSettings
	SpO2      SpO2Settings
	FaceLoss  FaceLossSettings
	Session   SessionSettings
	Enabled   EnabledSettings
}

// MQTTSettings contains settings for publishing averaged readings.
type MQTTSettings struct {
	Enabled      bool          // true to enable MQTT
	Broker       string        // MQTT (tcp://host:port)
	TopicPrefix  string        // readings go to <prefix>/heart_rate etc.
	Username     string        // MQTT username, may reference ${ENV_VAR}
	Password     string        // MQTT password, may reference ${ENV_VAR}
	PasswordFile string        // read password from this file instead, e.g. a Docker secret
	QoS          byte          // 0, 1 or 2
	Retain       bool          // retain published messages
	Interval     time.Duration // averaging and publish period
	Discovery    DiscoverySettings
}

// DiscoverySettings controls Home Assistant MQTT auto-discovery.
type DiscoverySettings struct {
	Enabled bool
	Prefix  string // discovery topic prefix, homeassistant by default
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to enable Prometheus compatible telemetry endpoint
	Listen  string // IP address and port to listen on
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings contains error reporting settings.
type SentrySettings struct {
	Enabled bool
	DSN     string // may reference ${ENV_VAR}
	DSNFile string // read DSN from this file instead
}

// Settings contains all configuration options for vitalcam.
type Settings struct {
	Debug bool // true to enable debug mode

	Version string `yaml:"-"` // build version, not stored in config file

	Main struct {
		Name string    // node name, used as MQTT device id
		Log  LogConfig // logging configuration
	}

	Vitals    VitalsSettings
	MQTT      MQTTSettings
	Telemetry TelemetrySettings
	WebServer WebServerSettings
	Sentry    SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	once             sync.Once
)

// Load reads the configuration file, environment and bound flags into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := ResolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// ResolveSecrets replaces credential fields with their file contents or
// expanded environment references.
func ResolveSecrets(settings *Settings) error {
	var err error
	if settings.MQTT.Username, err = secrets.ExpandString(settings.MQTT.Username); err != nil {
		return secretFieldError(err, "mqtt.username")
	}
	if settings.MQTT.Password, err = secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password); err != nil {
		return secretFieldError(err, "mqtt.password")
	}
	if settings.Sentry.DSN, err = secrets.Resolve(settings.Sentry.DSNFile, settings.Sentry.DSN); err != nil {
		return secretFieldError(err, "sentry.dsn")
	}
	return nil
}

func secretFieldError(err error, field string) error {
	return errors.New(err).
		Component("configuration").
		Category(errors.CategoryConfiguration).
		Context("operation", "resolve_secret").
		Context("field", field).
		Build()
}

// initViper registers defaults, search paths and environment overrides, then reads the file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig(viper.GetViper())

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml to dir and reads it back.
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, most preferred first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "get-home-directory").
			Build()
	}
	return []string{
		filepath.Join(homeDir, ".config", "vitalcam"),
		"/etc/vitalcam",
		".",
	}, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// RenderYAML marshals settings as YAML with the password masked.
func RenderYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = "********"
	}
	return yaml.Marshal(&masked)
}

// SaveYAMLConfig writes settings to configPath through a temporary file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
