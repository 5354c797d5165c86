// internal/ortenv/ortenv.go

// Package ortenv manages the process-wide ONNX Runtime environment.
package ortenv

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// MinVersion is the oldest onnxruntime shared library the bindings support.
const MinVersion = "1.17.0"

// ErrLibrary is returned when the shared library is missing or unusable.
var ErrLibrary = errors.New("onnxruntime library unavailable")

// Config controls environment initialization.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses
	// DefaultLibraryPath.
	LibraryPath string
	// LogLevel is one of verbose, info, warning, error, fatal.
	LogLevel string
}

var (
	mu          sync.Mutex
	initialized bool
)

// DefaultLibraryPath returns the conventional shared library name for the
// running OS and architecture.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// ParseLogLevel maps a level name to the onnxruntime logging level.
func ParseLogLevel(s string) (ort.LoggingLevel, error) {
	switch strings.ToLower(s) {
	case "verbose":
		return ort.LoggingLevelVerbose, nil
	case "info":
		return ort.LoggingLevelInfo, nil
	case "", "warning", "warn":
		return ort.LoggingLevelWarning, nil
	case "error":
		return ort.LoggingLevelError, nil
	case "fatal":
		return ort.LoggingLevelFatal, nil
	}
	return ort.LoggingLevelWarning, fmt.Errorf("unknown onnxruntime log level: %q", s)
}

// CheckVersion reports whether version satisfies MinVersion.
func CheckVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid onnxruntime version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(">= " + MinVersion)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: version %s is older than %s", ErrLibrary, v, MinVersion)
	}
	return nil
}

// Init loads the shared library and initializes the environment. Calling it
// again after a successful Init is a no-op.
func Init(cfg Config, logger zerolog.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	path := cfg.LibraryPath
	if path == "" {
		path = DefaultLibraryPath()
	}
	if err := probeLibrary(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLibrary, path, err)
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	version := ort.GetVersion()
	if err := CheckVersion(version); err != nil {
		ort.DestroyEnvironment()
		return err
	}

	level, err := ParseLogLevel(cfg.LogLevel)
	if err != nil {
		ort.DestroyEnvironment()
		return err
	}
	if err := ort.SetEnvironmentLogLevel(level); err != nil {
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to set onnxruntime log level: %w", err)
	}

	initialized = true
	logger.Info().Str("library", path).Str("version", version).Msg("onnxruntime environment ready")
	return nil
}

// Initialized reports whether Init has succeeded.
func Initialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return initialized
}

// Shutdown destroys the environment. It is safe to call without Init.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if !initialized {
		return nil
	}
	initialized = false
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX environment: %w", err)
	}
	return nil
}
