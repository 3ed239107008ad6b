package core

import (
	"os"
	"syscall"
	"testing"
)

func TestExitCodeConstants(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		value int
	}{
		{"ExitCodeSuccess", ExitCodeSuccess, 0},
		{"ExitCodeError", ExitCodeError, 1},
		{"ExitCodeSIGINT", ExitCodeSIGINT, 130},
		{"ExitCodeSIGTERM", ExitCodeSIGTERM, 143},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.value {
				t.Errorf("%s = %d, want %d", tt.name, tt.code, tt.value)
			}
		})
	}
}

func TestExitCodeForSignal(t *testing.T) {
	tests := []struct {
		name string
		sig  os.Signal
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"interrupt", os.Interrupt, ExitCodeSIGINT},
		{"sigterm", syscall.SIGTERM, ExitCodeSIGTERM},
		{"sighup", syscall.SIGHUP, ExitCodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeForSignal(tt.sig); got != tt.want {
				t.Errorf("ExitCodeForSignal(%v) = %d, want %d", tt.sig, got, tt.want)
			}
		})
	}
}

func TestExitCodeName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{ExitCodeSuccess, "success"},
		{ExitCodeError, "error"},
		{ExitCodeSIGINT, "interrupted (SIGINT)"},
		{ExitCodeSIGTERM, "terminated (SIGTERM)"},
		{99, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ExitCodeName(tt.code); got != tt.want {
				t.Errorf("ExitCodeName(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsSignalExit(t *testing.T) {
	if IsSignalExit(ExitCodeError) {
		t.Error("IsSignalExit(1) = true, want false")
	}
	if !IsSignalExit(ExitCodeSIGTERM) {
		t.Error("IsSignalExit(143) = false, want true")
	}
}
