package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/operator-framework/alpha-decomposition/pkg/config"
	"github.com/operator-framework/alpha-decomposition/pkg/lib/server"
	"github.com/operator-framework/alpha-decomposition/pkg/lib/signals"
	"github.com/operator-framework/alpha-decomposition/pkg/metrics"
)

const (
	exitOK         = 0
	exitNegative   = 1
	exitFailure    = 2
	exitIndecisive = 3
)

// exitError carries a process exit status. A nil err prints nothing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitFailure
}

type options struct {
	configPath      string
	debug           bool
	metricsAddr     string
	metricsTextfile string

	config *config.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{config: config.Default()}

	cmd := &cobra.Command{
		Use:           "alpha",
		Short:         "Decides and searches minimal submask-closure decompositions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.complete(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "path to a YAML config file; flags override its values")
	flags.BoolVar(&o.debug, "debug", false, "use debug log level")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	flags.StringVar(&o.metricsTextfile, "metrics-textfile", "", "write a metrics snapshot to this file when the command finishes")
	o.config.AddFlags(flags)

	cmd.AddCommand(
		newDecideCmd(o),
		newWitnessCmd(o),
		newComputeCmd(o),
		newScanCmd(o),
		newVerifyCmd(o),
		newVersionCmd(),
	)
	return cmd
}

// complete loads the config file, reapplies explicitly set flags on top
// of it, and builds the logger.
func (o *options) complete(cmd *cobra.Command) error {
	o.logger = logrus.New()
	o.logger.SetOutput(cmd.ErrOrStderr())
	if o.debug {
		o.logger.SetLevel(logrus.DebugLevel)
	}

	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
		loaded.AddFlags(fs)
		var setErr error
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if fs.Lookup(f.Name) == nil || setErr != nil {
				return
			}
			setErr = fs.Set(f.Name, f.Value.String())
		})
		if setErr != nil {
			return &exitError{code: exitFailure, err: setErr}
		}
		*o.config = *loaded
	}
	if err := o.config.Validate(); err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	o.logger.Debugf("log level %s", o.logger.Level)
	return nil
}

// run calls fn with a context cancelled on SIGINT or SIGTERM, serving
// or recording metrics alongside when requested.
func (o *options) run(cmd *cobra.Command, fn func(ctx context.Context) error) (err error) {
	ctx, stop := signals.Context(cmd.Context(), o.logger)
	defer stop()

	if o.metricsAddr != "" || o.metricsTextfile != "" {
		registerMetrics.Do(metrics.Register)
	}
	if o.metricsTextfile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(prometheus.DefaultGatherer, o.metricsTextfile); werr != nil && err == nil {
				err = &exitError{code: exitFailure, err: werr}
			}
		}()
	}
	if o.metricsAddr != "" {
		s, err := server.Listen(server.WithAddress(o.metricsAddr), server.WithLogger(o.logger), server.WithDebug(o.debug))
		if err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		serverCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := s.Run(serverCtx); err != nil {
				o.logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}
	return fn(ctx)
}

var registerMetrics sync.Once

func parsePositive(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, &exitError{code: exitFailure, err: fmt.Errorf("%s must be a positive integer, got %q", name, s)}
	}
	return v, nil
}
