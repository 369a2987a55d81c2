// Command token prints a session token for a user id, signed with the
// server's AUTH_SECRET. Handy for poking the websocket endpoint by hand.
package main

import (
	"fmt"
	"os"
	"time"

	"devcollab/internal/auth"
	"devcollab/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: token <user-id>")
		os.Exit(1)
	}

	cfg, err := config.Load(false)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewTokenManager([]byte(cfg.AuthSecret), cfg.TokenExpiry).Issue(os.Args[1])
	if err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
}
