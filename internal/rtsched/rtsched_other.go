//go:build !windows

package rtsched

// Boost is a no-op outside Windows: MMCSS and the Windows multimedia
// timer have no equivalent exercised by this driver's other target
// platforms.
func Boost() (release func(), err error) {
	return func() {}, nil
}
