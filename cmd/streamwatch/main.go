// Command streamwatch follows a metrics relay from the terminal. It keeps a
// stream connection open, prints connection transitions and redraws CPU and
// RAG latency charts from the rolling history.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
