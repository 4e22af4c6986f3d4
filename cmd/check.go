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
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/goatx/falsify"
	"github.com/goatx/falsify/internal/config"
	"github.com/goatx/falsify/internal/logging"
	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/signal"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate the robustness of a formula",
	Long: `Evaluate a formula over a recorded trajectory, or over a grid of model
parameters.

With --spec and --trace, the trajectory is read from a CSV file with a
"time" column followed by one column per signal, and the robustness is
reported at --at (the trajectory start by default). --full also prints the
robustness at every sample time.

With --config, the model of a run file is simulated over a --grid of the
parameter ranges and a robustness summary is printed. --debug prints every
point as JSON instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		outputPath, err := flags.GetString("output")
		if err != nil {
			return err
		}
		w, closeOut, err := output(cmd, outputPath)
		if err != nil {
			return err
		}
		defer closeOut()

		if path, _ := flags.GetString("config"); path != "" {
			return checkConfig(cmd, w, path)
		}
		return checkTrace(cmd, w)
	},
}

func checkTrace(cmd *cobra.Command, w io.Writer) error {
	flags := cmd.Flags()
	specPath, _ := flags.GetString("spec")
	tracePath, _ := flags.GetString("trace")
	id, _ := flags.GetString("formula")
	full, _ := flags.GetBool("full")
	if specPath == "" || tracePath == "" || id == "" {
		return errors.New("check: --spec, --trace and --formula are required without --config")
	}

	logger, err := newLogger(cmd, logging.Config{})
	if err != nil {
		return err
	}
	src, err := readFile(specPath)
	if err != nil {
		return err
	}
	s, err := falsify.New(falsify.WithLogger(logger))
	if err != nil {
		return err
	}
	if _, err := s.SetSpec(src); err != nil {
		return fmt.Errorf("%s: %w", specPath, err)
	}

	file, err := os.Open(tracePath)
	if err != nil {
		return err
	}
	defer file.Close()
	tr, err := signal.ReadCSV(file)
	if err != nil {
		return fmt.Errorf("%s: %w", tracePath, err)
	}

	at := tr.Start()
	if flags.Changed("at") {
		at, _ = flags.GetFloat64("at")
	}
	rho, sig, err := s.Robustness(id, tr, at)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Formula: %s\n", id)
	_, _ = fmt.Fprintf(w, "Robustness at t=%g: %g\n", at, rho)
	_, _ = fmt.Fprintf(w, "Verdict: %s\n", verdict(rho))
	if full {
		_, _ = fmt.Fprintln(w, "Robustness Signal:")
		for _, t := range tr.Breakpoints() {
			v, err := sig.At(t)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "  t=%g\t%g\n", t, v)
		}
	}
	return nil
}

func verdict(rho float64) string {
	switch {
	case math.IsNaN(rho):
		return "undefined"
	case rho > 0:
		return "satisfied"
	case rho < 0:
		return "violated"
	}
	return "boundary"
}

func checkConfig(cmd *cobra.Command, w io.Writer, path string) error {
	flags := cmd.Flags()
	grid, _ := flags.GetInt("grid")
	debug, _ := flags.GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	id := cfg.Formula
	if v, _ := flags.GetString("formula"); v != "" {
		id = v
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	src, err := readFile(cfg.Spec)
	if err != nil {
		return err
	}
	domain, err := cfg.ParamSet(metrics.Default)
	if err != nil {
		return err
	}
	points, err := domain.GridSample(grid)
	if err != nil {
		return err
	}
	sim, err := cfg.Simulator()
	if err != nil {
		return err
	}

	s, err := falsify.New(
		falsify.WithSimulator(sim),
		falsify.WithTimeSpan(cfg.Span),
		falsify.WithParamSet(points),
		falsify.WithWorkers(cfg.Workers),
		falsify.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if _, err := s.SetSpec(src); err != nil {
		return fmt.Errorf("%s: %w", cfg.Spec, err)
	}

	if debug {
		return s.Debug(cmd.Context(), w, id)
	}
	_, err = s.Check(cmd.Context(), w, id)
	return err
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("spec", "", "specification file")
	checkCmd.Flags().String("trace", "", "trajectory CSV file")
	checkCmd.Flags().StringP("formula", "f", "", "formula to evaluate (defaults to the run file's formula with --config)")
	checkCmd.Flags().Float64("at", 0, "evaluation time (defaults to the trajectory start)")
	checkCmd.Flags().Bool("full", false, "print the robustness at every sample time")
	checkCmd.Flags().String("config", "", "run file whose model and parameter ranges are checked")
	checkCmd.Flags().Int("grid", 3, "grid points per searched parameter with --config")
	checkCmd.Flags().Bool("debug", false, "print every grid point as JSON with --config")
	checkCmd.Flags().StringP("output", "o", "", "write the report to a file")
	checkCmd.MarkFlagsMutuallyExclusive("config", "trace")
}
