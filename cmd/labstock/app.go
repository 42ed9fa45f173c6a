package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"labstock/internal/blob"
	"labstock/internal/config"
	"labstock/internal/core"
	"labstock/internal/infra/logging"
	"labstock/pkg/domain"
)

// expvar names are process-global, so the recorder is published once.
var (
	expvarOnce sync.Once
	expvarRec  *core.ExpvarMetricsRecorder
)

type app struct {
	cfgPath     string
	yes         bool
	verbose     bool
	metricsFile string

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	cfg    config.Config
	logger *logging.Logger
	prom   *core.PrometheusMetricsRecorder
	svc    *core.Service
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: bufio.NewReader(in), out: out, errOut: errOut}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "labstock",
		Short:         "Laboratory reagent inventory",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "config file (default ./labstock.yaml when present)")
	flags.BoolVarP(&a.yes, "yes", "y", false, "save usages that exceed stock without asking")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(
		a.migrateCmd(),
		a.storageCmd(),
		a.reagentCmd(),
		a.usageCmd(),
		a.userCmd(),
		a.materialCmd(),
		a.seedCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if a.metricsFile != "" {
		cfg.Metrics.Textfile = a.metricsFile
	}
	a.cfg = cfg

	a.logger, err = logging.NewWithConsole(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	store, err := core.OpenPersistentStore(ctx, core.StoreConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, nil)
	if err != nil {
		a.logger.Error("open store failed", "driver", cfg.Storage.Driver, "error", err)
		return errors.New(core.GenericFailureMessage)
	}
	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3:     cfg.Blob.S3,
	})
	if err != nil {
		_ = store.Close()
		a.logger.Error("open blob store failed", "driver", cfg.Blob.Driver, "error", err)
		return errors.New(core.GenericFailureMessage)
	}

	expvarOnce.Do(func() { expvarRec = core.NewExpvarMetricsRecorder(cfg.Metrics.ExpvarName) })
	a.prom = core.NewPrometheusMetricsRecorder()
	a.svc = core.NewService(store,
		core.WithLogger(a.logger),
		core.WithBlobStore(blobs),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{a.prom, expvarRec}),
	)
	a.logger.Debug("inventory opened", "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	if a.prom != nil && a.cfg.Metrics.Textfile != "" {
		errs = append(errs, a.prom.WriteToTextfile(a.cfg.Metrics.Textfile))
	}
	if a.logger != nil {
		if expvarRec != nil {
			a.logger.Debug("metrics", "expvar", expvarRec.Name(), "operations", len(expvarRec.Snapshot().Operations))
		}
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// fail turns a service error into the message shown to the user. Unexpected
// failures keep their detail in the log only.
func (a *app) fail(err error) error {
	if err == nil {
		return nil
	}
	msg := core.UserMessage(err)
	if msg == core.GenericFailureMessage {
		a.logger.Error("command failed", "error", err)
	}
	return errors.New(msg)
}

// confirm asks a yes/no question on the command input; --yes answers yes.
func (a *app) confirm(question string) bool {
	if a.yes {
		return true
	}
	fmt.Fprintf(a.out, "%s [y/N]: ", question)
	line, _ := a.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) table(header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

// printWarnings reports non-blocking rule warnings of a committed write.
func (a *app) printWarnings(res domain.Result) {
	for _, v := range res.Warnings() {
		fmt.Fprintf(a.out, "warning: %s\n", v.Message)
	}
}
