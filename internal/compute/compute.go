// internal/compute/compute.go

// Package compute selects the execution provider ONNX Runtime uses to run a
// policy graph.
//
// Hardware detection runs on every resolution and is logged, but the active
// backend is pinned to CPU on all platforms: the GPU providers produced
// errors with the exported policies and are kept out of the session path
// until they are validated.
package compute

import (
	"fmt"
	"runtime"
	"strings"
)

// ComputeName identifies a compute backend.
type ComputeName int

const (
	CUDA ComputeName = iota
	ROCm
	DirectML
	CoreML
	CPU
)

var computeNames = map[ComputeName]string{
	CUDA:     "CUDA",
	ROCm:     "ROCm",
	DirectML: "DirectML",
	CoreML:   "CoreML",
	CPU:      "CPU",
}

func (c ComputeName) String() string {
	if name, ok := computeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ComputeName(%d)", int(c))
}

// ParseComputeName parses a backend name case-insensitively.
func ParseComputeName(s string) (ComputeName, error) {
	for c, name := range computeNames {
		if strings.EqualFold(name, s) {
			return c, nil
		}
	}
	return CPU, fmt.Errorf("unknown compute backend: %q", s)
}

// Host OS names as reported by the game engine.
const (
	OSWindows = "Windows"
	OSLinux   = "Linux"
	OSX11     = "X11"
	OSMacOS   = "macOS"
)

// HostOS returns the engine-style name of the running OS.
func HostOS() string {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "linux", "freebsd", "openbsd", "netbsd":
		return OSLinux
	case "darwin":
		return OSMacOS
	default:
		return runtime.GOOS
	}
}

// DetectVendor maps a rendering adapter name to the backend preferred for
// that GPU vendor. Unrecognized adapters map to CPU; the second return value
// reports whether the vendor was recognized.
func DetectVendor(adapterName string) (ComputeName, bool) {
	name := strings.ToUpper(adapterName)

	switch {
	case strings.Contains(name, "INTEL"):
		return DirectML, true
	case strings.Contains(name, "AMD"), strings.Contains(name, "RADEON"):
		return DirectML, true
	case strings.Contains(name, "NVIDIA"):
		return CUDA, true
	}
	return CPU, false
}

// Preferred returns the backend a platform could use for the detected
// backend, ignoring the CPU pin. ROCm needs a native plugin build and CUDA on
// macOS does not exist, so both fall back to CPU.
func Preferred(osName string, detected ComputeName) ComputeName {
	switch osName {
	case OSWindows:
		if detected == CUDA || detected == DirectML {
			return detected
		}
	case OSLinux, OSX11:
		if detected == CUDA {
			return CUDA
		}
	case OSMacOS:
		if detected == CoreML {
			return CoreML
		}
	}
	return CPU
}
