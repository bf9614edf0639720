//go:build linux

package spool

import (
	"os"
	"syscall"
)

func syncFile(file *os.File) error {
	if file == nil {
		return nil
	}
	return syscall.Fdatasync(int(file.Fd()))
}
