// internal/compute/configurator_test.go
package compute

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/policy-runtime/internal/ortenv"
)

func TestMakeConfiguredSessionOptions_SetsSeverity(t *testing.T) {
	err := ortenv.Init(ortenv.Config{
		LibraryPath: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
		LogLevel:    "warning",
	}, zerolog.Nop())
	if err != nil {
		t.Skipf("Skipping session options test: %v", err)
	}

	for _, level := range []ort.LoggingLevel{ort.LoggingLevelWarning, ort.LoggingLevelError} {
		c := NewConfigurator(zerolog.Nop(), WithLogLevel(level), WithAdapterSource(StaticAdapter("NVIDIA GeForce")))
		opts, err := c.MakeConfiguredSessionOptions()
		require.NoError(t, err)
		require.NotNil(t, opts)
		require.NoError(t, opts.Destroy())
	}
}
