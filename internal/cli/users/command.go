package users

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/Anvoria/sessionly/internal/cli"
	"github.com/Anvoria/sessionly/internal/database"
	"github.com/Anvoria/sessionly/internal/domain/user"
)

type registrar interface {
	Register(ctx context.Context, req user.RegisterRequest) (*user.User, error)
}

// Command manages user accounts
type Command struct {
	Out io.Writer

	open func() (registrar, func(), error)
}

func (c *Command) Name() string {
	return "users"
}

func (c *Command) Description() string {
	return "User administration (create)"
}

func (c *Command) Run(args []string) error {
	if len(args) < 1 {
		c.printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "create":
		return c.runCreate(args[1:])
	default:
		c.printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func (c *Command) printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: sessionly-cli users <subcommand> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  create -email <email> -password <password> [-username <name>]\n")
}

func (c *Command) runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	email := fs.String("email", "", "User email")
	password := fs.String("password", "", "User password")
	username := fs.String("username", "", "Username (defaults to the email)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" || *password == "" {
		return fmt.Errorf("email and password are required")
	}
	if err := validator.New().Var(*email, "email"); err != nil {
		return fmt.Errorf("invalid email: %s", *email)
	}
	if *username == "" {
		*username = *email
	}

	users, closeAll, err := c.registrar()
	if err != nil {
		return err
	}
	defer closeAll()

	u, err := users.Register(context.Background(), user.RegisterRequest{
		Username: *username,
		Email:    *email,
		Password: *password,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(c.out(), "User created\n")
	fmt.Fprintf(c.out(), "  ID:    %s\n", u.ID)
	fmt.Fprintf(c.out(), "  Email: %s\n", u.Email)
	return nil
}

func (c *Command) registrar() (registrar, func(), error) {
	if c.open != nil {
		return c.open()
	}

	cfg, _, err := cli.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	closeAll, err := cli.ConnectStores(cfg)
	if err != nil {
		return nil, nil, err
	}
	return user.NewService(user.NewRepository(database.DB)), closeAll, nil
}

func (c *Command) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}
