package main

import (
	"fmt"
	"os"

	"github.com/pevans/promobot/capacity"
)

func handleSize(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one size is required\n")
		fmt.Fprintf(os.Stderr, "Usage: promobot size <text>...\n")
		os.Exit(1)
	}

	fmt.Printf("%-20s %-16s %s\n", "INPUT", "BYTES", "GIB")
	fmt.Println("--------------------------------------------------")

	for _, text := range args {
		n := capacity.ParseSize(text)
		if n == 0 {
			fmt.Printf("%-20q %-16s %s\n", text, "unknown", "-")
			continue
		}
		fmt.Printf("%-20q %-16d %.2f\n", text, n, float64(n)/float64(capacity.GiB))
	}
}
