package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"examgen"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	verbose    bool
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	examgen.Sync()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if errors.Is(err, examgen.ErrMissingCredential) || errors.Is(err, examgen.ErrIndexUnavailable) {
			fmt.Fprintln(stderr, "Nothing was generated.")
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examgen",
		Short:         "Generate exam questions with adaptive retrieval from a question bank",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to examgen config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose debugging output")

	root.AddCommand(
		newGenerateCmd(),
		newIngestCmd(),
		newCompareCmd(),
		newHistoryCmd(),
	)
	return root
}

// loadConfig reads the config and applies the logging flags
func loadConfig() (*examgen.Config, error) {
	cfg, err := examgen.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		if err := examgen.SetLogLevel(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}
	if verbose {
		examgen.SetVerbose(true)
	}
	return cfg, nil
}
