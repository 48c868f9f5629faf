package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pevans/promobot/ledger"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func printLedgerUsage() {
	fmt.Println("promobot ledger -- Inspect or edit the dedup ledger")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  promobot ledger <action> [-c config.yaml] [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list                List recorded ids in recording order")
	fmt.Println("  add <id>...         Record ids so they are never acquired")
	fmt.Println("  contains <id>       Exit 0 if the id is recorded, 1 otherwise")
	fmt.Println("  help                Show this help message")
}

func handleLedgerCommand(action string, args []string) {
	switch action {
	case "list", "add", "contains":
	case "help", "--help", "-h":
		printLedgerUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown ledger command: %s\n\n", action)
		printLedgerUsage()
		os.Exit(1)
	}

	cfg, rest := loadConfig("ledger "+action, args)
	ctx := context.Background()

	store, err := ledger.NewStore(cfg.Ledger.Type, cfg.Ledger.DSN, afero.NewOsFs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open ledger store: %v\n", err)
		os.Exit(1)
	}
	led, err := ledger.Open(ctx, store, zerolog.Nop())
	if err != nil {
		store.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer led.Close()

	var code int
	switch action {
	case "list":
		handleLedgerList(led)
	case "add":
		code = handleLedgerAdd(ctx, led, rest)
	case "contains":
		code = handleLedgerContains(led, rest)
	}

	if code != 0 {
		led.Close()
		os.Exit(code)
	}
}

func handleLedgerList(led *ledger.Ledger) {
	ids := led.IDs()
	if len(ids) == 0 {
		fmt.Println("Ledger is empty.")
		return
	}

	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Printf("\n%d recorded\n", len(ids))
}

func handleLedgerAdd(ctx context.Context, led *ledger.Ledger, ids []string) int {
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one id is required\n")
		fmt.Fprintf(os.Stderr, "Usage: promobot ledger add <id>...\n")
		return 1
	}

	added := 0
	for _, id := range ids {
		if led.Contains(id) {
			fmt.Printf("  %s already recorded\n", id)
			continue
		}
		led.Record(id)
		added++
	}

	if err := led.Save(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save ledger: %v\n", err)
		return 1
	}

	fmt.Printf("✓ Recorded %d id(s)\n", added)
	return 0
}

func handleLedgerContains(led *ledger.Ledger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one id is required\n")
		fmt.Fprintf(os.Stderr, "Usage: promobot ledger contains <id>\n")
		return 1
	}

	if led.Contains(args[0]) {
		fmt.Printf("%s is recorded\n", args[0])
		return 0
	}
	fmt.Printf("%s is not recorded\n", args[0])
	return 1
}
