// Command provctl is a small operator CLI for a running provd: today it
// has one subcommand, status, which checks the admin gRPC health surface
// (SPEC_FULL.md C.3).
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		if err := runStatus(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "provctl status: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "provctl: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: provctl <command> [flags]

Commands:
  status <admin-addr>   Check a provd's gRPC health surface

Run 'provctl <command> --help' for command-specific flags.
`)
}
