//go:build !cgo

package clipboard

// New returns a no-op backend; the system clipboard needs cgo.
func New() Backend {
	return NewHeadless()
}
