// Package mqtt implements the mqtt sub-commands.
package mqtt

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/errors"
	client "github.com/vitalcam/vitalcam/internal/mqtt"
)

// testTimeout bounds the whole connection test.
const testTimeout = 45 * time.Second

// Command creates the mqtt parent command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mqtt",
		Short: "Check the MQTT broker and manage Home Assistant discovery",
	}

	cmd.AddCommand(testCommand(settings), discoveryCommand(settings))
	return cmd
}

func testCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Resolve, dial, connect and publish a test message to the configured broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient(client.ConfigFromSettings(settings), nil)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			ctx, cancel := context.WithTimeout(cmd.Context(), testTimeout)
			defer cancel()
			return runTest(ctx, cmd.OutOrStdout(), c)
		},
	}
}

// runTest prints each stage result and fails when any stage failed.
func runTest(ctx context.Context, w io.Writer, c client.Client) error {
	results := make(chan client.TestResult)
	go c.TestConnection(ctx, results)

	failed := ""
	for r := range results {
		mark := "ok"
		if !r.Success {
			mark = "FAILED"
			failed = r.Stage
		}
		fmt.Fprintf(w, "%-18s %-6s %s\n", r.Stage, mark, r.Message)
		if r.Error != "" {
			fmt.Fprintf(w, "%18s %s\n", "", r.Error)
		}
	}

	if failed != "" {
		return errors.Newf("mqtt connection test failed at %s", failed).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("stage", failed).
			Build()
	}
	return nil
}

func discoveryCommand(settings *conf.Settings) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Publish (or remove) the Home Assistant discovery configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient(client.ConfigFromSettings(settings), nil)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), testTimeout)
			defer cancel()

			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Disconnect()

			p := client.NewDiscoveryPublisher(c, discoveryConfig(settings))
			if remove {
				err = p.RemoveDiscovery(ctx)
			} else {
				err = p.PublishDiscovery(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "discovery configuration updated")
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the entities instead of announcing them")
	return cmd
}

// discoveryConfig maps settings to the discovery publisher configuration.
func discoveryConfig(settings *conf.Settings) *client.DiscoveryConfig {
	prefix := settings.MQTT.Discovery.Prefix
	if prefix == "" {
		prefix = "homeassistant"
	}
	return &client.DiscoveryConfig{
		DiscoveryPrefix: prefix,
		BaseTopic:       settings.MQTT.TopicPrefix,
		DeviceName:      "vitalcam " + settings.Main.Name,
		NodeID:          client.SanitizeID(settings.Main.Name),
		Version:         settings.Version,
	}
}
