package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"goaltrack/internal/app"
	"goaltrack/internal/config"
	"goaltrack/internal/encryption"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer closeApp.
// operation identifies the CLI command being run (e.g. "AddLog", "SyncNow").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(ctx, cfg, app.Options{Operation: operation, Stderr: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp flushes pending sync work. It runs on a fresh context so an
// interrupted command still gets its final upload.
func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "goaltrack",
	Short:        "Track IEP goal progress with local-first cloud backup",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		gatewayType, _ := cmd.Flags().GetString("gateway")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if gatewayType != "" {
			cfg.Gateway.Type = gatewayType
		}
		if encrypt {
			cfg.Encryption.Type = "age"
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if encrypt {
			pass, err := readPassphrase("Backup passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if pass != confirm {
				return fmt.Errorf("passphrases do not match")
			}
			enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
			if err != nil {
				return fmt.Errorf("creating encryptor: %w", err)
			}
			if err := enc.Setup(pass); err != nil {
				return fmt.Errorf("generating keys: %w", err)
			}
			fmt.Printf("Encryption keys written to %s\n", cfg.Encryption.PublicKeyPath)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("# %s\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep the remote backup current in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Daemon")
		if err != nil {
			return err
		}
		defer closeApp(a)

		fmt.Printf("goaltrack daemon running (poll every %s)\n", a.Config().Sync.PollInterval.Duration)
		return a.RunDaemon(cmd.Context())
	},
}

// migrate-legacy command
var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Import logs kept in the legacy array format",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "MigrateLegacy")
		if err != nil {
			return err
		}
		defer closeApp(a)

		res := a.LegacyResult()
		if res.AlreadyDone {
			fmt.Println("Legacy logs were already migrated.")
			return nil
		}
		fmt.Printf("Imported %d log(s), skipped %d", res.Imported, res.Skipped)
		if res.MediaMissing > 0 {
			fmt.Printf(", %d with missing media", res.MediaMissing)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt the remote backup with a passphrase-protected key")
	configInitCmd.Flags().String("gateway", "", "Backup provider: filesystem, s3 or gcs")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(studentCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateLegacyCmd)
	rootCmd.AddCommand(daemonCmd)
}
