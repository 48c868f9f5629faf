package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pevans/promobot/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Environment from .env never overrides variables already set
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// Get subcommand
	subcommand := os.Args[1]

	switch subcommand {
	case "run":
		os.Exit(handleRun(os.Args[2:]))
	case "ledger":
		if len(os.Args) < 3 {
			printLedgerUsage()
			os.Exit(1)
		}
		handleLedgerCommand(os.Args[2], os.Args[3:])
	case "resume":
		handleResume(os.Args[2:])
	case "size":
		handleSize(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("promobot - Promotional torrent polling agent")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  promobot <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run        Run the polling loop")
	fmt.Println("  ledger     Inspect or edit the dedup ledger")
	fmt.Println("  resume     Start paused torrents by info hash")
	fmt.Println("  size       Parse human-readable sizes")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Flags (run, ledger, resume):")
	fmt.Println("  -c <path>  Config file (default: config.yaml)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Printf("  %-30s Tracker account name\n", config.EnvTrackerUsername)
	fmt.Printf("  %-30s Tracker account password\n", config.EnvTrackerPassword)
	fmt.Printf("  %-30s qBittorrent WebUI user\n", config.EnvQBittorrentUsername)
	fmt.Printf("  %-30s qBittorrent WebUI password\n", config.EnvQBittorrentPassword)
	fmt.Printf("  %-30s Ledger location\n", config.EnvLedgerDSN)
}

// loadConfig parses the -c flag out of args and loads the config it names.
// It returns the remaining positional arguments.
func loadConfig(name string, args []string) (*config.FileConfig, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("c", config.DefaultPath, "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg, fs.Args()
}
