//go:build !linux

package mpris

import "context"

// MPRIS is a stub for non-Linux platforms.
type MPRIS struct{}

// New returns nil on non-Linux platforms.
func New(handler Handler) (*MPRIS, error) {
	return nil, nil
}

// Watch is a no-op on non-Linux platforms.
func (m *MPRIS) Watch(ctx context.Context, src StatusSource) {}

// Close is a no-op on non-Linux platforms.
func (m *MPRIS) Close() {}
