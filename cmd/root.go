/*
Copyright © 2025 Honoka Toda, Shinya Ishitobi

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goatx/falsify/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "falsify",
	Short: "Falsify signal temporal logic specifications",
	Long: `Evaluate the robustness of signal temporal logic formulas over recorded
trajectories and simulated models, and search model parameters for inputs
that violate a formula.`,
	SilenceUsage: true,
}

// Execute runs the command line. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "discard log output")
}

// newLogger builds the command logger from base, overridden by the
// global flags. Logs go to the command's error stream.
func newLogger(cmd *cobra.Command, base logging.Config) (*slog.Logger, error) {
	flags := cmd.Flags()
	if v, _ := flags.GetString("log-level"); v != "" {
		base.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		base.Format = v
	}
	if v, _ := flags.GetBool("quiet"); v {
		base.Quiet = true
	}
	return logging.New(base, cmd.ErrOrStderr())
}

// readFile returns the contents of path.
func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// output returns the command's output stream, or a file when path is set.
// The returned function closes the file.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}
