package main

import (
	"fmt"
	"os"

	"github.com/notefolio/metagen/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		cmdStart(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "keys":
		cmdKeys(os.Args[2:])
	case "init-config":
		cmdInitConfig()
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: metagen <command> [options]

Commands:
  start        Start the metagen daemon
  stop         Stop the running daemon
  status       Show daemon status and summary stats
  keys         Manage the provider API key (list|set|delete [account])
  init-config  Generate default config file
  version      Print version information
  help         Show this help message

Options:
  --foreground  Run in foreground (with 'start')`)
}
