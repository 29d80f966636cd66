// Package config implements the config sub-commands.
package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vitalcam/vitalcam/internal/conf"
)

// Command creates the config parent command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(showCommand(settings), validateCommand(settings))
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(cmd.OutOrStdout(), settings)
		},
	}
}

func validateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and report every problem found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	}
}

func show(w io.Writer, settings *conf.Settings) error {
	data, err := conf.RenderYAML(settings)
	if err != nil {
		return fmt.Errorf("error rendering configuration: %w", err)
	}
	if file := viper.ConfigFileUsed(); file != "" {
		if _, err := fmt.Fprintf(w, "# %s\n", file); err != nil {
			return err
		}
	}
	_, err = w.Write(data)
	return err
}
