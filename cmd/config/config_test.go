package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vitalcam/vitalcam/internal/conf"
)

func TestShowMasksSecrets(t *testing.T) {
	settings := &conf.Settings{}
	settings.Main.Name = "desk"
	settings.MQTT.Broker = "tcp://localhost:1883"
	settings.MQTT.Password = "hunter2"
	settings.Sentry.DSN = "https://key@sentry.example/1"

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "hunter2")
	assert.NotContains(t, out.String(), "sentry.example")

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &parsed))
	assert.Contains(t, parsed, "mqtt")
	assert.Equal(t, "hunter2", settings.MQTT.Password, "settings must not be modified")
}

func TestValidateReportsErrors(t *testing.T) {
	cmd := Command(&conf.Settings{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate"})
	require.Error(t, cmd.Execute())
}
