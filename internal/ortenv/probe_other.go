// internal/ortenv/probe_other.go

//go:build !(darwin || linux || freebsd)

package ortenv

// probeLibrary is a no-op here: onnxruntime_go loads the DLL with
// LoadLibrary, which also searches PATH, and reports its own error.
func probeLibrary(path string) error {
	return nil
}
