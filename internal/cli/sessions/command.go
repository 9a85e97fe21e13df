package sessions

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/Anvoria/sessionly/internal/cli"
	"github.com/Anvoria/sessionly/internal/janitor"
	"github.com/Anvoria/sessionly/internal/server"
)

// Command runs session maintenance from the shell
type Command struct {
	Out io.Writer

	// open wires the components; tests replace it
	open func() (*server.Components, func(), error)
}

func (c *Command) Name() string {
	return "sessions"
}

func (c *Command) Description() string {
	return "Session maintenance (cleanup, stats, revoke-user)"
}

func (c *Command) Run(args []string) error {
	if len(args) < 1 {
		c.printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "cleanup":
		return c.runCleanup(args[1:])
	case "stats":
		return c.runStats(args[1:])
	case "revoke-user":
		return c.runRevokeUser(args[1:])
	default:
		c.printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func (c *Command) printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: sessionly-cli sessions <subcommand> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  cleanup [-deep]       Delete expired sessions; -deep also purges old revoked ones\n")
	fmt.Fprintf(os.Stderr, "  stats                 Print session counts as JSON\n")
	fmt.Fprintf(os.Stderr, "  revoke-user -user ID  Revoke every active session of a user\n")
}

func (c *Command) runCleanup(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	deep := fs.Bool("deep", false, "Also delete revoked sessions past the retention window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	components, closeAll, err := c.components()
	if err != nil {
		return err
	}
	defer closeAll()

	pass := janitor.PassLight
	if *deep {
		pass = janitor.PassDeep
	}

	result, err := components.Janitor.RunOnce(context.Background(), pass)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return c.printJSON(result)
}

func (c *Command) runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	components, closeAll, err := c.components()
	if err != nil {
		return err
	}
	defer closeAll()

	stats, err := components.Sessions.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}
	return c.printJSON(stats)
}

func (c *Command) runRevokeUser(args []string) error {
	fs := flag.NewFlagSet("revoke-user", flag.ContinueOnError)
	userID := fs.String("user", "", "User ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := uuid.Parse(*userID); err != nil {
		return fmt.Errorf("a valid -user ID is required")
	}

	components, closeAll, err := c.components()
	if err != nil {
		return err
	}
	defer closeAll()

	revoked, err := components.Sessions.LogoutAll(context.Background(), *userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	fmt.Fprintf(c.out(), "Revoked %d session(s) for user %s\n", revoked, *userID)
	return nil
}

func (c *Command) components() (*server.Components, func(), error) {
	if c.open != nil {
		return c.open()
	}

	cfg, envConfig, err := cli.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	closeAll, err := cli.ConnectStores(cfg)
	if err != nil {
		return nil, nil, err
	}

	components, err := server.NewComponents(cfg, envConfig)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return components, closeAll, nil
}

func (c *Command) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Command) printJSON(v any) error {
	enc := json.NewEncoder(c.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
