//go:build windows

package cmd

// Windows consoles do not signal size changes.
func watchResize(fn func()) (stop func()) {
	return func() {}
}
