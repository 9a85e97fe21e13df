package main

import (
	"fmt"
	"os"

	"github.com/Anvoria/sessionly/internal/cli"
	"github.com/Anvoria/sessionly/internal/cli/keys"
	"github.com/Anvoria/sessionly/internal/cli/sessions"
	"github.com/Anvoria/sessionly/internal/cli/users"
)

func main() {
	registry := cli.NewRegistry()

	registry.Register(&keys.Command{})
	registry.Register(&sessions.Command{})
	registry.Register(&users.Command{})

	if err := registry.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
