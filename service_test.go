package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func TestHandleServiceCommand_NotHandled(t *testing.T) {
	tests := [][]string{
		{},
		{"ragmetrics"},
		{"ragmetrics", "serve"},
		{"ragmetrics", "--port=9000"},
	}
	for _, args := range tests {
		if HandleServiceCommand(args) {
			t.Errorf("HandleServiceCommand(%q) = true, want false", args)
		}
	}
}

func TestHandleServiceCommand_Help(t *testing.T) {
	for _, command := range []string{"help", "-h", "--help", "-help"} {
		t.Run(command, func(t *testing.T) {
			oldStdout := os.Stdout
			r, w, _ := os.Pipe()
			os.Stdout = w

			handled := HandleServiceCommand([]string{"ragmetrics", command})

			w.Close()
			os.Stdout = oldStdout
			var buf bytes.Buffer
			io.Copy(&buf, r)

			if !handled {
				t.Errorf("HandleServiceCommand should handle %s", command)
			}
			if !strings.Contains(buf.String(), "install") {
				t.Errorf("help output should list commands, got: %s", buf.String())
			}
		})
	}
}

func TestIsControlAction(t *testing.T) {
	tests := map[string]bool{
		"install":   true,
		"uninstall": true,
		"start":     true,
		"stop":      true,
		"restart":   true,
		"status":    false,
		"remove":    false,
	}
	for action, want := range tests {
		if got := isControlAction(action); got != want {
			t.Errorf("isControlAction(%q) = %v, want %v", action, got, want)
		}
	}
}
