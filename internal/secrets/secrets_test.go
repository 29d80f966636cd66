package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalcam/vitalcam/internal/errors"
)

func TestExpandString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		envVars map[string]string
		want    string
		wantErr bool
	}{
		{name: "empty string", input: "", want: ""},
		{name: "literal string", input: "literal-value", want: "literal-value"},
		{name: "simple variable", input: "${MQTT_PASS}", envVars: map[string]string{"MQTT_PASS": "s3cret"}, want: "s3cret"},
		{name: "prefix and suffix", input: "user-${ID}-x", envVars: map[string]string{"ID": "42"}, want: "user-42-x"},
		{name: "multiple variables", input: "${U}:${P}", envVars: map[string]string{"U": "admin", "P": "pw"}, want: "admin:pw"},
		{name: "fallback unused", input: "${TOKEN:-default}", envVars: map[string]string{"TOKEN": "actual"}, want: "actual"},
		{name: "fallback used", input: "${TOKEN:-default}", want: "default"},
		{name: "empty fallback", input: "${TOKEN:-}", want: ""},
		{name: "missing variable", input: "${MISSING_TOKEN}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN", "")
			t.Setenv("MISSING_TOKEN", "")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				assert.Contains(t, err.Error(), "MISSING_TOKEN")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string, mode os.FileMode) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), mode))
		return p
	}

	t.Run("trims trailing newlines", func(t *testing.T) {
		got, err := ReadFile(write("pass", "  hunter2 \r\n\n", 0o600))
		require.NoError(t, err)
		assert.Equal(t, "  hunter2 ", got)
	})

	t.Run("permissive mode still reads", func(t *testing.T) {
		got, err := ReadFile(write("open", "value\n", 0o644))
		require.NoError(t, err)
		assert.Equal(t, "value", got)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ReadFile(write("empty", "\n", 0o600))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadFile(filepath.Join(dir, "nope"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := ReadFile(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a regular file")
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, maxSecretFileSize+1)
		for i := range big {
			big[i] = 'a'
		}
		_, err := ReadFile(write("big", string(big), 0o600))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := ReadFile("")
		require.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dsn")
	require.NoError(t, os.WriteFile(file, []byte("from-file\n"), 0o600))
	t.Setenv("SENTRY_DSN_TEST", "from-env")

	got, err := Resolve(file, "${SENTRY_DSN_TEST}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got, "file takes precedence")

	got, err = Resolve("", "${SENTRY_DSN_TEST}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "literal")
	require.NoError(t, err)
	assert.Equal(t, "literal", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
