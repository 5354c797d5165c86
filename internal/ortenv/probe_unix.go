// internal/ortenv/probe_unix.go

//go:build darwin || linux || freebsd

package ortenv

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// apiBaseSymbol is exported by every onnxruntime shared library.
const apiBaseSymbol = "OrtGetApiBase"

// probeLibrary opens the library and looks up the API entry point so a wrong
// path fails with a readable error instead of inside cgo.
func probeLibrary(path string) error {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return err
	}
	defer purego.Dlclose(handle)

	if _, err := purego.Dlsym(handle, apiBaseSymbol); err != nil {
		return fmt.Errorf("%s not found, not an onnxruntime library: %w", apiBaseSymbol, err)
	}
	return nil
}
