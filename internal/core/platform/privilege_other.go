//go:build !unix && !windows

package platform

// Elevated always reports false where elevation cannot be determined.
func Elevated() (bool, error) {
	return false, nil
}
