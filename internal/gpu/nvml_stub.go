//go:build !cuda

package gpu

// Library is empty in builds without CUDA support.
type Library interface{}

// SystemLibrary returns nil when CUDA support is disabled.
func SystemLibrary() Library {
	return nil
}
