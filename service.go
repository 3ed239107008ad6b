package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
)

// program adapts the relay to the OS service manager lifecycle.
type program struct {
	cancel   context.CancelFunc
	exit     chan struct{}
	exitCode int
}

// Start is called by the service manager; it must not block.
func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.exit = make(chan struct{})

	go func() {
		defer close(p.exit)
		p.exitCode = run(ctx)
	}()
	return nil
}

// Stop cancels the relay and waits for its cleanup handlers.
func (p *program) Stop(s service.Service) error {
	p.cancel()

	select {
	case <-p.exit:
		if p.exitCode != 0 {
			return fmt.Errorf("relay exited with code %d", p.exitCode)
		}
		return nil
	case <-time.After(45 * time.Second):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// serviceConfig describes the system service.
func serviceConfig() *service.Config {
	return &service.Config{
		Name:        "RagMetrics",
		DisplayName: "RAG Metrics Relay",
		Description: "Streams RAG platform metrics snapshots to dashboards over WebSocket",
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	}
}

func newService() (service.Service, error) {
	s, err := service.New(&program{}, serviceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService runs under the service manager when not interactive.
// It returns false when the relay should run in the foreground.
func RunAsService() (bool, error) {
	if service.Interactive() {
		return false, nil
	}

	s, err := newService()
	if err != nil {
		return false, err
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	return true, nil
}

// printServiceUsage prints the help/usage information for service commands.
func printServiceUsage() {
	fmt.Println("ragmetrics service management")
	fmt.Println()
	fmt.Println("Usage: ragmetrics <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install the relay as a system service")
	fmt.Println("  uninstall  Remove the system service (alias: remove)")
	fmt.Println("  start      Start the system service")
	fmt.Println("  stop       Stop the system service")
	fmt.Println("  restart    Restart the system service")
	fmt.Println("  status     Show the current service status")
	fmt.Println()
	fmt.Println("Run without arguments to start the relay in the foreground.")
}

// HandleServiceCommand handles service-related command-line arguments.
// Returns true if a service command was handled.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	action := args[1]
	switch action {
	case "help", "-h", "--help", "-help":
		printServiceUsage()
		return true
	case "remove":
		action = "uninstall"
	case "status":
		s, err := newService()
		if err == nil {
			var status service.Status
			status, err = s.Status()
			if err == nil {
				switch status {
				case service.StatusRunning:
					fmt.Println("Service is running")
				case service.StatusStopped:
					fmt.Println("Service is stopped")
				default:
					fmt.Println("Service status unknown")
				}
				return true
			}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !isControlAction(action) {
		return false
	}

	s, err := newService()
	if err == nil {
		err = service.Control(s, action)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Service %s: ok\n", action)
	return true
}

func isControlAction(action string) bool {
	for _, a := range service.ControlAction {
		if a == action {
			return true
		}
	}
	return false
}
