package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
)

var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "download":
		return runDownload(ctx, rest, stdout, stderr)
	case "bottleneck", "find-bottleneck":
		return runBottleneck(ctx, cmd, rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "asmap %s\n", version)
		fmt.Fprintf(stdout, "Built with Go %s\n", strings.TrimPrefix(runtime.Version(), "go"))
		return exitOK
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "asmap finds the bottleneck AS of every announced prefix in BGP RIB dumps\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  asmap download [options]                 fetch MRT RIB dumps from route collectors\n")
	fmt.Fprintf(w, "  asmap bottleneck [options] <dump>...     compute the bottleneck report\n")
	fmt.Fprintf(w, "  asmap version\n\n")
	fmt.Fprintf(w, "Run 'asmap <command> -h' for the options of a command.\n\n")
	fmt.Fprintf(w, "Examples:\n")
	fmt.Fprintf(w, "  asmap download -collectors rrc00,rrc01 -dir dump\n")
	fmt.Fprintf(w, "  asmap bottleneck -out results/ dump/\n")
	fmt.Fprintf(w, "  asmap bottleneck -format csv -shard_step 64 dump/ > bottleneck.csv\n\n")
	fmt.Fprintf(w, "Environment Variables:\n")
	fmt.Fprintf(w, "  REDIS_ADDR     Redis server receiving the bottleneck map\n")
	fmt.Fprintf(w, "  ASMAP_OUT      Report destination\n")
	fmt.Fprintf(w, "  ASMAP_WORKERS  Parallel input files\n")
	fmt.Fprintf(w, "  LOG_LEVEL      Log level (debug, info, warn, error)\n")
}
