package core

import (
	"os"
	"syscall"
)

// Process exit codes. Signal exits follow the 128 + signal number convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)

// ExitCodeForSignal maps the signal that stopped the relay to its exit code.
// A nil signal means a normal stop.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case nil:
		return ExitCodeSuccess
	case os.Interrupt:
		return ExitCodeSIGINT
	case syscall.SIGTERM:
		return ExitCodeSIGTERM
	default:
		return ExitCodeError
	}
}

// ExitCodeName returns a short description of an exit code for log output.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// IsSignalExit reports whether code is one of the signal exit codes.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
