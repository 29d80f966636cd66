package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vitalcam/vitalcam/cmd/config"
	"github.com/vitalcam/vitalcam/cmd/mqtt"
	"github.com/vitalcam/vitalcam/cmd/simulate"
	"github.com/vitalcam/vitalcam/internal/buildinfo"
	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/telemetry"
)

// telemetryFlushTimeout bounds the Sentry flush on exit.
const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vitalcam",
		Short:         "Camera-based heart rate, stress and SpO2 estimation",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetVersionTemplate("vitalcam {{.Version}}\n")

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	configCmd := config.Command(settings)

	rootCmd.AddCommand(
		simulate.Command(settings),
		mqtt.Command(settings),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Printing the configuration must stay free of log output
		if cmd.Parent() == configCmd {
			return nil
		}
		return initialize(settings)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(telemetryFlushTimeout)
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize installs the process logger and, when enabled, error telemetry.
func initialize(settings *conf.Settings) error {
	level := settings.Main.Log.Level
	if settings.Debug {
		level = "debug"
	}

	central, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: level,
		Format:       settings.Main.Log.Format,
		FilePath:     settings.Main.Log.Path,
		ModuleLevels: settings.Main.Log.ModuleLevels,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.Init(settings); err != nil {
		// Telemetry is optional, keep running without it
		logger.Global().Module("main").Warn("sentry telemetry unavailable", logger.Error(err))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.Name, "name", viper.GetString("main.name"), "Node name, used as MQTT device id")
	rootCmd.PersistentFlags().StringVar(&settings.Main.Log.Level, "loglevel", viper.GetString("main.log.level"), "Log level (trace, debug, info, warn, error)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
