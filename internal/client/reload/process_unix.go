//go:build !windows

package reload

import "syscall"

// children get their own process group so terminal signals aimed at the
// daemon do not reach them
func getSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
