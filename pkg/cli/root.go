// Package cli implements the depthmesh command line. Each subcommand lives in
// its own file; this one defines the root command, global flags and the
// mapping from error kinds to exit codes.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/df07/go-depthmesh/pkg/config"
	"github.com/df07/go-depthmesh/pkg/core"
)

// Build information, injected from main
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Exit codes by error kind
const (
	ExitOK               = 0
	ExitGeneralError     = 1
	ExitInvalidParameter = 2
	ExitImageDecode      = 3
	ExitGeometry         = 4
	ExitIO               = 5
)

// app carries global flags and the state PersistentPreRunE prepares for subcommands
type app struct {
	configPath string
	verbose    bool
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand creates the root command with every subcommand registered
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "depthmesh",
		Short: "Convert 2D images into 3D meshes",
		Long: `depthmesh derives a depth field from an image's intensity, projects it
into a point cloud and writes it as a DXF point set or an STL/OBJ mesh.

Configuration comes from built-in defaults, an optional YAML file (--config)
and DEPTHMESH_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       versionString(),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return core.WrapError(core.StageOptions, core.ErrInvalidParameter, err, "%s", cmd.CommandPath())
	})

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(newExportCommand(a))
	rootCmd.AddCommand(newPreviewCommand(a))
	rootCmd.AddCommand(newInspectCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newVersionCommand(a))

	return rootCmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return core.WrapError(core.StageOptions, core.ErrInvalidParameter, err, "loading configuration")
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// Execute runs the root command, reports any error on its error stream and
// returns the process exit code
func Execute(rootCmd *cobra.Command) int {
	_, err := rootCmd.ExecuteC()
	if err == nil {
		return ExitOK
	}

	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("json")
	printError(rootCmd.ErrOrStderr(), err, jsonOutput)
	return ExitCode(err)
}

// ExitCode maps an error onto the process exit code for its kind
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch core.KindOf(err) {
	case core.ErrInvalidParameter:
		return ExitInvalidParameter
	case core.ErrImageDecode:
		return ExitImageDecode
	case core.ErrInsufficientGeometry, core.ErrInvalidGeometry:
		return ExitGeometry
	case core.ErrExportIO:
		return ExitIO
	default:
		return ExitGeneralError
	}
}

func printError(w io.Writer, err error, jsonOutput bool) {
	if !jsonOutput {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	detail := map[string]any{"message": err.Error()}
	if kind := core.KindOf(err); kind != nil {
		detail["kind"] = kind.Error()
	}
	var stageErr *core.StageError
	if errors.As(err, &stageErr) {
		detail["stage"] = stageErr.Stage
	}
	data, _ := json.MarshalIndent(map[string]any{"error": detail}, "", "  ")
	fmt.Fprintln(w, string(data))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// argsAtLeast is cobra.MinimumNArgs reported as an invalid parameter
func argsAtLeast(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return core.WrapError(core.StageOptions, core.ErrInvalidParameter, err, "%s", cmd.CommandPath())
		}
		return nil
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": Version,
					"commit":  Commit,
					"date":    Date,
				})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "depthmesh %s\n", versionString())
			return err
		},
	}
}
