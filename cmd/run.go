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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goatx/falsify"
	"github.com/goatx/falsify/internal/config"
	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/internal/store"
	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/search"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search model parameters for a violation",
	Long: `Run a falsification search described by a run file: corners of the
parameter ranges first, then batches of quasi-random samples alternating
with local simplex refinement, until a violation is found or a budget is
spent.

With --db (or the run file's store setting) the run and its batch history
are stored, and an interrupted run can be continued with "falsify resume".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			cfg.Store = db
		}
		src, err := readFile(cfg.Spec)
		if err != nil {
			return err
		}
		domain, err := cfg.ParamSet(metrics.Default)
		if err != nil {
			return err
		}
		return execute(cmd, &job{cfg: cfg, spec: src, domain: domain})
	},
}

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume RUN_ID",
	Short: "Continue a stored falsification run",
	Long: `Continue a run stored with --db from its saved state. The quasi-random
sequence continues where it stopped and the best point found so far is
kept. --evaluations and --time replace the stored budget for this run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("run id: %w", err)
		}
		db, err := cmd.Flags().GetString("db")
		if err != nil {
			return err
		}
		st, err := store.Open(cmd.Context(), db, nil)
		if err != nil {
			return err
		}
		defer st.Close()
		run, err := st.LoadRun(cmd.Context(), id)
		if err != nil {
			return err
		}

		cfg, err := config.Parse(run.Config)
		if err != nil {
			return fmt.Errorf("stored run file: %w", err)
		}
		if cmd.Flags().Changed("evaluations") {
			cfg.Search.Budget.Evaluations, _ = cmd.Flags().GetInt("evaluations")
		}
		if cmd.Flags().Changed("time") {
			cfg.Search.Budget.Time, _ = cmd.Flags().GetDuration("time")
		}
		if err := cfg.Search.Validate(); err != nil {
			return err
		}
		domain := &paramset.Set{}
		if err := json.Unmarshal(run.ParamSet, domain); err != nil {
			return fmt.Errorf("stored parameter set: %w", err)
		}
		return execute(cmd, &job{cfg: cfg, spec: run.Spec, domain: domain, store: st, run: run})
	},
}

// job is one search to run and, optionally, store.
type job struct {
	cfg    *config.Config
	spec   string
	domain *paramset.Set
	store  *store.Store
	run    *store.Run
}

func execute(cmd *cobra.Command, j *job) error {
	ctx := cmd.Context()
	logger, err := newLogger(cmd, j.cfg.Log)
	if err != nil {
		return err
	}
	sim, err := j.cfg.Simulator()
	if err != nil {
		return err
	}
	s, err := falsify.New(
		falsify.WithSimulator(sim),
		falsify.WithTimeSpan(j.cfg.Span),
		falsify.WithParamSet(j.domain),
		falsify.WithWorkers(j.cfg.Workers),
		falsify.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if _, err := s.SetSpec(j.spec); err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		stop, err := serveMetrics(addr, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if j.store == nil && j.cfg.Store != "" {
		st, err := store.Open(ctx, j.cfg.Store, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		cfgYAML, err := yaml.Marshal(j.cfg)
		if err != nil {
			return err
		}
		ps, err := json.Marshal(j.domain)
		if err != nil {
			return err
		}
		j.store = st
		j.run = &store.Run{Formula: j.cfg.Formula, Spec: j.spec, Config: cfgYAML, ParamSet: ps}
		if err := st.CreateRun(ctx, j.run); err != nil {
			return err
		}
	}

	var opts []search.Option
	if j.run != nil {
		opts = append(opts, search.WithState(j.run.State), search.WithRecorder(j.store.Recorder(ctx, j.run.ID)))
	}
	f, err := s.Falsifier(j.cfg.Formula, nil, j.cfg.Search, opts...)
	if err != nil {
		return err
	}

	res, runErr := f.Run(ctx)
	if j.run != nil {
		status := store.StatusOf(res, runErr)
		if err := j.store.UpdateRun(context.WithoutCancel(ctx), j.run.ID, f.State(), status); err != nil {
			return errors.Join(runErr, err)
		}
		logger.Info("run stored", "run", j.run.ID, "status", status)
	}
	if res != nil {
		falsify.WriteResult(cmd.OutOrStdout(), j.domain.Names(), res)
		if j.run != nil {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run ID: %s\n", j.run.ID)
		}
	}
	return runErr
}

// serveMetrics exposes the default Prometheus registry on addr until the
// returned function is called.
func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)

	runCmd.Flags().StringP("config", "c", "", "run file")
	runCmd.Flags().String("db", "", "store the run in this SQLite database")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = runCmd.MarkFlagRequired("config")

	resumeCmd.Flags().String("db", "", "SQLite run database")
	resumeCmd.Flags().Int("evaluations", 0, "evaluation budget for this run")
	resumeCmd.Flags().Duration("time", 0, "time budget for this run")
	resumeCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = resumeCmd.MarkFlagRequired("db")
}
