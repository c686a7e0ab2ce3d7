// Command linestream serves and benchmarks newline-delimited message streams.
//
//	linestream serve --mode poll --addr 127.0.0.1:5555
//	linestream send --addr 127.0.0.1:5555 --count 100000
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
