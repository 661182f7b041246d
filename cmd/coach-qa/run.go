package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"coach-qa/internal/contract"
	"coach-qa/internal/env"
	"coach-qa/internal/executor"
	"coach-qa/internal/httpclient"
	"coach-qa/internal/ir"
	"coach-qa/internal/reporter"
	"coach-qa/pkg/logging"
)

type runOptions struct {
	envFiles []string
	dotenv   []string
	outDir   string
	jsonOut  bool
	junitOut bool
	openapi  string
	parallel int
	failFast bool
	color    bool
}

func newRunCmd(g *globalOptions, stdout io.Writer, environ []string) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the selected missions and write reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return o.run(ctx, g, stdout, environ)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&o.envFiles, "env", nil, "JSON env files (comma-separated, later files win)")
	f.StringSliceVar(&o.dotenv, "dotenv", nil, ".env files read before the process environment")
	f.StringVar(&o.outDir, "out", "reports", "Output directory for artifacts")
	f.BoolVar(&o.jsonOut, "json", true, "Write results.json")
	f.BoolVar(&o.junitOut, "junit", true, "Write junit.xml")
	f.StringVar(&o.openapi, "openapi", "", "OpenAPI document (YAML/JSON) for endpoint coverage")
	f.IntVar(&o.parallel, "parallel", 1, "Isolatable missions to run at once")
	f.BoolVar(&o.failFast, "fail-fast", false, "Skip remaining scenarios after the first failure (forces --parallel=1)")
	f.BoolVar(&o.color, "color", false, "Colorize the terminal summary")
	return cmd
}

func (o *runOptions) run(ctx context.Context, g *globalOptions, stdout io.Writer, environ []string) error {
	started := time.Now()
	ms, e, cov, err := o.prepare(g, environ)
	if err != nil {
		// The report is produced even when nothing could run.
		doc := reporter.StartupError(err, started, time.Now())
		if werr := o.write(doc, nil, stdout); werr != nil {
			logging.Error("cli", werr, "write startup report")
		}
		return err
	}

	client := httpclient.New(httpclient.ConfigFrom(e), nil)
	runner := executor.New(e, client).WithParallel(o.parallel).WithFailFast(o.failFast)
	if cov != nil {
		runner = runner.WithCoverage(cov)
	}
	logging.Info("cli", "running %d mission(s) against %s", len(ms), e.BaseURL())
	res := runner.Run(ctx, ms)

	doc := reporter.Build(res)
	if err := o.write(doc, cov, stdout); err != nil {
		return configError("write reports: %v", err)
	}
	if !doc.Passed() {
		return &exitError{code: ExitFailed, err: errScenariosFailed}
	}
	return nil
}

// prepare resolves everything that can abort the run before the first call.
func (o *runOptions) prepare(g *globalOptions, environ []string) ([]*ir.Mission, *env.Environment, *contract.Coverage, error) {
	e, err := env.Load(env.Sources{DotEnv: o.dotenv, Environ: environ, JSONFiles: o.envFiles})
	if err != nil {
		return nil, nil, nil, &exitError{code: ExitConfig, err: err}
	}
	cat, err := g.load()
	if err != nil {
		return nil, nil, nil, err
	}
	ms, err := cat.Select(g.selector())
	if err != nil {
		return nil, nil, nil, configError("%v", err)
	}
	if len(ms) == 0 {
		return nil, nil, nil, configError("no scenarios selected")
	}
	var cov *contract.Coverage
	if o.openapi != "" {
		router, err := contract.LoadFromFile(o.openapi)
		if err != nil {
			return nil, nil, nil, configError("openapi: %v", err)
		}
		cov = contract.NewCoverage(router)
	}
	return ms, e, cov, nil
}

func (o *runOptions) write(doc *reporter.Document, cov *contract.Coverage, stdout io.Writer) error {
	if err := reporter.WriteSummary(stdout, doc, reporter.SummaryOptions{Color: o.color}); err != nil {
		return err
	}
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir out: %w", err)
	}
	if o.jsonOut {
		if err := writeFile(filepath.Join(o.outDir, "results.json"), func(w io.Writer) error {
			return reporter.WriteJSON(w, doc)
		}); err != nil {
			return err
		}
	}
	if o.junitOut {
		if err := writeFile(filepath.Join(o.outDir, "junit.xml"), func(w io.Writer) error {
			return reporter.WriteJUnit(w, "coach-qa", doc)
		}); err != nil {
			return err
		}
	}
	if cov != nil {
		if err := writeFile(filepath.Join(o.outDir, "coverage.json"), func(w io.Writer) error {
			return reporter.WriteCoverage(w, cov)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
