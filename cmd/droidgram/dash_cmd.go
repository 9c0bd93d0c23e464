package main

import (
	"fmt"
	"os"

	"github.com/droidgram/droidgram/cmd/droidgram/tui"
)

// Swapped in tests.
var runDashTUI = tui.Run

func dashCmd() {
	args := os.Args[2:]
	if len(args) > 0 {
		switch args[0] {
		case "help", "--help", "-h":
			dashHelp()
			return
		default:
			fmt.Printf("Unknown dash option: %s\n", args[0])
			dashHelp()
			os.Exit(2)
		}
	}

	if err := runDashTUI(); err != nil {
		fmt.Printf("Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}

func dashHelp() {
	commandName := invokedCLIName()
	fmt.Println("\nDash:")
	fmt.Printf("  %s dash opens a live terminal dashboard: gateway and channel status,\n", commandName)
	fmt.Println("  agent settings, and the job queue. Refreshes automatically.")
	fmt.Println()
	fmt.Println("Keys:")
	fmt.Println("  r             Refresh now")
	fmt.Println("  q / ctrl+c    Quit")
}
