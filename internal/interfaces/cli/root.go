// Package cli implements the mapsync command tree.  serve hosts the engine
// over HTTP, fetch runs a one-shot viewport query and events tail follows
// the published visible-set summaries.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/mapsync/internal/config"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	EnvFile      string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config *config.Config
	// ConfigPath is the file Config was read from; empty when it came from
	// the environment alone.
	ConfigPath   string
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
}

// NewRootCommand creates the root command with its global flags and
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mapsync",
		Short: "mapsync keeps a property map and its listing panel in sync",
		Long: "mapsync tracks the map camera, queries the spatial service for clusters or\n" +
			"individual listings depending on zoom, and publishes the visible set to the\n" +
			"listing panel and to downstream consumers.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./mapsync.yaml)")
	pf.StringVar(&opts.EnvFile, "env-file", "", "dotenv file loaded before configuration (default: ./.env if present)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "global operation timeout")

	cmd.AddCommand(
		newServeCmd(),
		newFetchCmd(),
		newEventsCmd(),
		newVersionCmd(),
	)

	return cmd
}

// persistentPreRun loads configuration and the logger, then stores a
// CLIContext on the command.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if opts.NoColor {
		color.NoColor = true
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return err
	}

	cfg, path, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger, err := initLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		ConfigPath:   path,
		Logger:       logger,
		OutputFormat: opts.OutputFormat,
		Verbose:      opts.Verbose,
		NoColor:      opts.NoColor,
		Timeout:      opts.Timeout,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// loadEnvFile populates the process environment from a dotenv file.  An
// explicit path must exist; the implicit ./.env is optional.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("env file %q: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	return nil
}

// configSearchPaths lists the implicit config locations in priority order.
func configSearchPaths() []string {
	paths := []string{"./mapsync.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mapsync", "config.yaml"))
	}
	return append(paths, "/etc/mapsync/config.yaml")
}

// initConfig loads configuration with priority: env > file > defaults.  It
// returns the path it read, if any.
func initConfig(opts *RootOptions) (*config.Config, string, error) {
	if opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		return cfg, opts.ConfigPath, err
	}

	for _, p := range configSearchPaths() {
		if _, statErr := os.Stat(p); statErr == nil {
			cfg, err := config.Load(p)
			return cfg, p, err
		}
	}

	cfg, err := config.LoadFromEnv()
	return cfg, "", err
}

// initLogger builds the logger from the log section.  --log-level and
// --verbose take precedence over the file.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	logCfg := cfg.Log
	if opts.LogLevel != "" {
		logCfg.Level = strings.ToLower(opts.LogLevel)
	}
	if opts.Verbose {
		logCfg.Level = logging.LevelDebug
	}
	if logCfg.OutputPaths == nil {
		logCfg.OutputPaths = []string{"stderr"}
	}
	return logging.NewLogger(logCfg)
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.InvalidParam("command context is nil")
	}

	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.InvalidParam("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd.OutOrStdout(), data)
	}

	switch strings.ToLower(cliCtx.OutputFormat) {
	case "json":
		return printJSON(cmd.OutOrStdout(), data)
	case "table":
		return printTable(cmd.OutOrStdout(), data)
	default:
		return printText(cmd.OutOrStdout(), data)
	}
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(w, v)
	case fmt.Stringer:
		fmt.Fprintln(w, v.String())
	default:
		fmt.Fprintf(w, "%+v\n", v)
	}
	return nil
}

// tableProvider is implemented by results with a tabular rendering.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

func printTable(w io.Writer, data interface{}) error {
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(w, FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(w, data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

// FormatTable renders headers and rows as an ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, row := range rows {
		padded := make([]string, len(headers))
		copy(padded, row)
		table.Append(padded)
	}
	table.Render()
	return sb.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

//Personal.AI order the ending
