package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/notefolio/metagen/internal/vault"
)

func cmdKeys(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: metagen keys <list|set|delete> [account]")
		os.Exit(1)
	}

	v := vault.New()

	switch args[0] {
	case "list":
		accounts, err := v.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing keys: %v\n", err)
			os.Exit(1)
		}
		if len(accounts) == 0 {
			fmt.Println("No API keys stored")
			return
		}
		for _, a := range accounts {
			fmt.Printf("  %s: ****\n", a)
		}

	case "set":
		account := keyAccount(args)
		fmt.Printf("Enter API key for %s: ", account)
		key, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
			os.Exit(1)
		}
		if err := v.Set(account, string(key)); err != nil {
			fmt.Fprintf(os.Stderr, "error storing key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s stored successfully\n", account)

	case "delete":
		account := keyAccount(args)
		if err := v.Delete(account); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s deleted\n", account)

	default:
		fmt.Fprintf(os.Stderr, "unknown keys command: %s\n", args[0])
		os.Exit(1)
	}
}

// keyAccount returns the account named on the command line, defaulting
// to the provider account.
func keyAccount(args []string) string {
	if len(args) >= 2 {
		return strings.ToLower(args[1])
	}
	return vault.DefaultAccount
}
