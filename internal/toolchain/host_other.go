//go:build !unix

package toolchain

import "runtime"

func machine() (string, error) {
	return runtime.GOARCH, nil
}
