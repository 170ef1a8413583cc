package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Stand-in for the real uplink: accepts its command line, echoes telemetry
// records from stdin to stdout and reports diagnostics on stderr.
type flagOptions struct {
	Credentials string `short:"a" description:"device credentials file"`
	Config      string `short:"c" description:"uplink config.toml"`
	Verbose     []bool `short:"v" description:"verbosity, repeatable"`

	IgnoreSigterm bool `long:"ignore-sigterm" env:"FAKEUPLINK_IGNORE_SIGTERM" description:"keep running on SIGTERM (debug feature)"`
	RunDuration   int  `long:"run-duration" env:"FAKEUPLINK_RUN_DURATION" description:"exit after this many seconds (debug feature)"`
	ExitCode      int  `long:"exit-code" env:"FAKEUPLINK_EXIT_CODE" description:"exit code after run duration"`
}

func main() {
	var opts flagOptions
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.IgnoreUnknown)
	_, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Fake uplink starting, pid: %d, opts: %+v\n", os.Getpid(), opts)

	for _, path := range []string{opts.Credentials, opts.Config} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(os.Stderr, "Missing input: %v\n", err)
			os.Exit(3)
		}
	}

	ctx := context.Background()
	if opts.RunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	stdinClosed := make(chan struct{})
	go func() {
		defer close(stdinClosed)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			fmt.Printf("received: %s\n", scanner.Text())
		}
		fmt.Fprintf(os.Stderr, "Fake uplink stdin closed\n")
	}()

	fmt.Println("Fake uplink ready")

	for {
		select {
		case receivedSignal := <-sig:
			if opts.IgnoreSigterm && receivedSignal == syscall.SIGTERM {
				fmt.Fprintf(os.Stderr, "Fake uplink ignoring signal: %v\n", receivedSignal)
				continue
			}
			fmt.Fprintf(os.Stderr, "Fake uplink received signal: %v\n", receivedSignal)
			return
		case <-stdinClosed:
			// Keep running like the real uplink, only signals stop it
			stdinClosed = nil
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "Fake uplink timed out\n")
			os.Exit(opts.ExitCode)
		}
	}
}
