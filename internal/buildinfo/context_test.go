package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextDefaults(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, "unknown", nilCtx.GetVersion())
	assert.Equal(t, "unknown", nilCtx.GetBuildDate())

	empty := &Context{}
	assert.Equal(t, "unknown", empty.GetVersion())
	assert.Equal(t, "unknown", empty.GetBuildDate())
}

func TestContextString(t *testing.T) {
	t.Parallel()

	c := &Context{Version: "v1.4.0", BuildDate: "2025-03-01T12:00:00Z"}
	s := c.String()
	assert.Contains(t, s, "v1.4.0")
	assert.Contains(t, s, "built 2025-03-01T12:00:00Z")
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}
