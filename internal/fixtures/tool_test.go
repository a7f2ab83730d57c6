package fixtures

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestGenerateDecodesToolOutput(t *testing.T) {
	registry := NewRegistry(testLogger(), []*Tool{
		{
			Name:   "echo-params",
			Binary: "sh",
			Args:   []string{"-c", `printf '["0x1",{"nonce":"0x0"}]'`},
		},
	})

	params, err := registry.Generate(context.Background(), "echo-params", "", nil)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "0x1", params[0])
}

func TestGenerateUnknownTool(t *testing.T) {
	registry := NewRegistry(testLogger(), nil)

	_, err := registry.Generate(context.Background(), "missing", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestGenerateSurfacesToolFailure(t *testing.T) {
	registry := NewRegistry(testLogger(), []*Tool{
		{
			Name:   "broken",
			Binary: "sh",
			Args:   []string{"-c", "echo boom >&2; exit 3"},
		},
	})

	_, err := registry.Generate(context.Background(), "broken", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestGenerateRejectsNonArrayOutput(t *testing.T) {
	registry := NewRegistry(testLogger(), []*Tool{
		{
			Name:   "scalar",
			Binary: "sh",
			Args:   []string{"-c", `printf '"just a string"'`},
		},
	})

	_, err := registry.Generate(context.Background(), "scalar", "", nil)
	require.Error(t, err)
}
