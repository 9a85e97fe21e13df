package keys

import (
	"crypto/rsa"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/Anvoria/sessionly/internal/cli"
	"github.com/Anvoria/sessionly/internal/domain/auth"
)

// Command manages the RSA keys that sign access tokens
type Command struct {
	Out io.Writer
}

func (c *Command) Name() string {
	return "keys"
}

func (c *Command) Description() string {
	return "Manage access token signing keys (generate, list, set-active)"
}

func (c *Command) Run(args []string) error {
	if len(args) < 1 {
		c.printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "generate":
		return c.runGenerate(args[1:])
	case "list":
		return c.runList(args[1:])
	case "set-active":
		return c.runSetActive(args[1:])
	default:
		c.printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func (c *Command) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Command) printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: sessionly-cli keys <subcommand> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  generate              Generate a new RSA key pair\n")
	fmt.Fprintf(os.Stderr, "    -kid <id>           Key ID (required)\n")
	fmt.Fprintf(os.Stderr, "    -bits <size>        Key size: 2048, 3072, or 4096 (default: 2048)\n")
	fmt.Fprintf(os.Stderr, "    -path <dir>         Keys directory (overrides config)\n")
	fmt.Fprintf(os.Stderr, "  list [-path <dir>]    List all available keys\n")
	fmt.Fprintf(os.Stderr, "  set-active <kid>      Check a key ID and print the config change\n")
}

// keysPath returns override, or the configured keys directory when override is empty
func keysPath(override string) (string, string, error) {
	if override != "" {
		return override, "", nil
	}

	cfg, _, err := cli.LoadConfig()
	if err != nil {
		return "", "", err
	}
	if cfg.Auth.KeysPath == "" {
		return "", "", fmt.Errorf("auth.keys_path is not configured, pass -path")
	}
	return cfg.Auth.KeysPath, cfg.Auth.ActiveKID, nil
}

func (c *Command) runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	kid := fs.String("kid", "", "Key ID (required)")
	bits := fs.Int("bits", 2048, "Key size in bits (2048, 3072, or 4096)")
	customPath := fs.String("path", "", "Keys directory path (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *kid == "" {
		return fmt.Errorf("key ID is required")
	}
	if strings.ContainsAny(*kid, `/\`) {
		return fmt.Errorf("key ID must not contain path separators")
	}
	if *bits != 2048 && *bits != 3072 && *bits != 4096 {
		return fmt.Errorf("key size must be 2048, 3072, or 4096")
	}

	path, _, err := keysPath(*customPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out(), "Generating %d-bit RSA key pair...\n", *bits)
	if err := auth.GenerateKeyPair(path, *kid, *bits); err != nil {
		return err
	}

	fmt.Fprintf(c.out(), "Key pair generated successfully\n")
	fmt.Fprintf(c.out(), "  Key ID: %s\n", *kid)
	return nil
}

func (c *Command) runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	customPath := fs.String("path", "", "Keys directory path (overrides config)")
	activeKID := fs.String("active", "", "Active key ID to highlight (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	path, configured, err := keysPath(*customPath)
	if err != nil {
		return err
	}
	if *activeKID == "" {
		*activeKID = configured
	}

	return c.listKeys(path, *activeKID)
}

func (c *Command) runSetActive(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("key ID required")
	}
	kid := args[0]

	fs := flag.NewFlagSet("set-active", flag.ContinueOnError)
	customPath := fs.String("path", "", "Keys directory path (overrides config)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	path, _, err := keysPath(*customPath)
	if err != nil {
		return err
	}

	keyStore, err := auth.LoadKeys(path, kid)
	if err != nil {
		return err
	}
	if _, err := keyStore.GetActiveKey(); err != nil {
		return fmt.Errorf("key with ID %s not found", kid)
	}

	fmt.Fprintf(c.out(), "To set active key, update config.yaml:\n\n")
	fmt.Fprintf(c.out(), "  auth:\n")
	fmt.Fprintf(c.out(), "    active_kid: %s\n", kid)
	return nil
}

func (c *Command) listKeys(path, activeKID string) error {
	keyStore, err := auth.LoadKeys(path, activeKID)
	if err != nil {
		return fmt.Errorf("failed to load keys: %w", err)
	}

	keySet := keyStore.JWKS()
	if keySet.Len() == 0 {
		fmt.Fprintf(c.out(), "No keys found in %s\n", path)
		return nil
	}

	fmt.Fprintf(c.out(), "Keys in %s:\n\n", path)
	activeKeyID := "key-" + strings.TrimPrefix(activeKID, "key-")

	for i := range keySet.Len() {
		key, ok := keySet.Key(i)
		if !ok {
			continue
		}

		kid, _ := key.KeyID()
		active := ""
		if kid == activeKeyID {
			active = " (ACTIVE)"
		}
		name := strings.TrimPrefix(kid, "key-")

		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			fmt.Fprintf(os.Stderr, "  %s: skipped (export failed: %v)\n", kid, err)
			continue
		}
		rsaKey, ok := rawKey.(*rsa.PublicKey)
		if !ok {
			fmt.Fprintf(os.Stderr, "  %s: skipped (not an RSA key)\n", kid)
			continue
		}

		fmt.Fprintf(c.out(), "  %s%s\n", kid, active)
		fmt.Fprintf(c.out(), "    Key size: %d bits\n", rsaKey.N.BitLen())
		fmt.Fprintf(c.out(), "    Private:  private-%s.pem\n", name)
		fmt.Fprintf(c.out(), "    Public:   public-%s.pem\n", name)
		fmt.Fprintln(c.out())
	}

	fmt.Fprintf(c.out(), "Active KID: %s\n", activeKID)
	return nil
}
