// Package main provides the CLI interface for the adogate quality gate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sivchari/adogate/internal/ci"
	"github.com/sivchari/adogate/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitPassed = 0
	exitFailed = 1
	exitFault  = 2
)

// errGateFailed signals a failed gate after its report lines were written.
var errGateFailed = errors.New("quality gate failed")

type app struct {
	v      *viper.Viper
	level  zap.AtomicLevel
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{
		v:      viper.New(),
		level:  zap.NewAtomicLevelAt(zapcore.WarnLevel),
		logger: zap.NewNop(),
	}

	rootCmd := &cobra.Command{
		Use:   "adogate",
		Short: "Quality gate for Azure DevOps test plans and work item queries",
		Long: `adogate evaluates a quality gate against Azure DevOps and fails the
pipeline step when it does not hold.

Modes:
- plans:  every test point of every suite in the given test plans must be Passed
- suites: every test point of the given planId:suiteId suites must be Passed
- query:  the given work item query must return no work items`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.initLogger()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = a.logger.Sync()
		},
	}

	a.v.SetEnvPrefix("ADOGATE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is .adogate.yaml)")
	flags.BoolP("verbose", "v", false, "verbose diagnostic logging on stderr")
	flags.String("organization", "", "Azure DevOps organization")
	flags.String("collection-url", "", "collection URL (overrides base URL and organization)")
	flags.String("project", "", "Azure DevOps project")
	flags.String("token", "", "personal access token (falls back to SYSTEM_ACCESSTOKEN in Azure Pipelines)")
	flags.String("api-version", "", "REST API version")
	flags.String("gate-name", "", "name of the quality gate in report lines")
	flags.String("reporter", "", "report line format: auto, azure, github or console")
	flags.StringSlice("format", nil, "report formats: console, json, html")
	flags.String("output-dir", "", "directory for json and html reports")

	for _, name := range []string{
		"config", "verbose", "organization", "collection-url", "project", "token",
		"api-version", "gate-name", "reporter", "format", "output-dir",
	} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(a.runCmd())
	rootCmd.AddCommand(a.plansCmd())
	rootCmd.AddCommand(a.suitesCmd())
	rootCmd.AddCommand(a.queryCmd())
	rootCmd.AddCommand(a.configCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the gate in the configured mode",
		Long: `Evaluate the gate in the mode named by --mode or gate.mode.
Unrecognized mode names fall back to query unless gate.strictMode is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.evaluate(cmd, func(cfg *config.Config) {
				overrideString(a.v, "mode", &cfg.Gate.Mode)
				overrideString(a.v, "plans", &cfg.Gate.Plans)
				overrideString(a.v, "suites", &cfg.Gate.Suites)
				overrideString(a.v, "query", &cfg.Gate.Query)
			})
		},
	}

	cmd.Flags().String("mode", "", "evaluation mode: plans, suites or query")
	cmd.Flags().String("plans", "", "comma-separated test plan ids")
	cmd.Flags().String("suites", "", "comma-separated planId:suiteId pairs")
	cmd.Flags().String("query", "", "WIQL work item query")

	for _, name := range []string{"mode", "plans", "suites", "query"} {
		_ = a.v.BindPFlag(name, cmd.Flags().Lookup(name))
	}

	return cmd
}

func (a *app) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "plans <planId>[,<planId>...]",
		Short:   "Require every test point of the given test plans to pass",
		Example: "  adogate plans 1201,1202 --organization contoso --project web",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.evaluate(cmd, func(cfg *config.Config) {
				cfg.Gate.Mode = "plans"
				cfg.Gate.Plans = strings.Join(args, ",")
			})
		},
	}
}

func (a *app) suitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "suites <planId:suiteId>[,<planId:suiteId>...]",
		Short:   "Require every test point of the given suites to pass",
		Example: "  adogate suites 1201:1305,1201:1306 --organization contoso --project web",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.evaluate(cmd, func(cfg *config.Config) {
				cfg.Gate.Mode = "suites"
				cfg.Gate.Suites = strings.Join(args, ",")
			})
		},
	}
}

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "query <wiql>",
		Short:   "Require a work item query to return no work items",
		Example: `  adogate query "SELECT [System.Id] FROM WorkItems WHERE [System.WorkItemType] = 'Bug' AND [System.State] <> 'Closed'"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.evaluate(cmd, func(cfg *config.Config) {
				cfg.Gate.Mode = "query"
				cfg.Gate.Query = args[0]
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage adogate configuration",
		Long:  "Commands for managing adogate configuration files",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new adogate configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")

			filename := a.v.GetString("config")
			if filename == "" {
				filename = config.DefaultFile
			}

			// Check if file already exists
			if _, err := os.Stat(filename); err == nil && !force {
				return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", filename)
			}

			cfg := config.Default()
			a.applyOverrides(cfg)

			if err := cfg.Save(filename); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", filename)

			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite existing config file")

	validateCmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := a.v.GetString("config")
			if len(args) > 0 {
				filename = args[0]
			}

			cfg, err := config.Load(filename)
			if err != nil {
				return err
			}

			a.applyOverrides(cfg)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")

			return nil
		},
	}

	cmd.AddCommand(initCmd)
	cmd.AddCommand(validateCmd)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adogate version %s\n", version)
		},
	}
}

// evaluate runs one gate. configure applies the command's mode and input.
func (a *app) evaluate(cmd *cobra.Command, configure func(cfg *config.Config)) error {
	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return err
	}

	a.applyOverrides(cfg)
	a.applyVerbose(cfg)
	configure(cfg)

	engine, err := ci.NewEngine(cfg, ci.LoadConfigFromEnv(),
		ci.WithLogger(a.logger),
		ci.WithOutput(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}

	outcome, err := engine.Run(cmd.Context())
	if err != nil {
		return err
	}

	if !outcome.Succeeded {
		return errGateFailed
	}

	return nil
}

// applyOverrides layers flags and ADOGATE_* variables over the config file.
func (a *app) applyOverrides(cfg *config.Config) {
	overrideString(a.v, "organization", &cfg.Azure.Organization)
	overrideString(a.v, "collection-url", &cfg.Azure.CollectionURL)
	overrideString(a.v, "project", &cfg.Azure.Project)
	overrideString(a.v, "token", &cfg.Azure.Token)
	overrideString(a.v, "api-version", &cfg.Azure.APIVersion)
	overrideString(a.v, "gate-name", &cfg.Gate.Name)
	overrideString(a.v, "reporter", &cfg.Reporter)
	overrideString(a.v, "output-dir", &cfg.Reports.OutputDir)

	if a.v.IsSet("format") {
		var formats []string
		for _, f := range a.v.GetStringSlice("format") {
			formats = append(formats, strings.Split(f, ",")...)
		}

		cfg.Reports.Formats = formats
	}

	if a.v.GetBool("verbose") {
		cfg.Verbose = true
	}
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

// applyVerbose lowers the log level when the config file asks for verbose output.
func (a *app) applyVerbose(cfg *config.Config) {
	if cfg.Verbose {
		a.level.SetLevel(zapcore.DebugLevel)
	}
}

func (a *app) initLogger() error {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = a.level

	if a.v.GetBool("verbose") {
		a.level.SetLevel(zapcore.DebugLevel)
	}

	logger, err := logConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.logger = logger

	return nil
}

// execute runs the CLI and maps the result to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)

	switch {
	case err == nil:
		return exitPassed
	case errors.Is(err, errGateFailed):
		return exitFailed
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)

		return exitFault
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
