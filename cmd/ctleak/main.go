package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ctleak/domain/leakage"
	"ctleak/internal"
	"ctleak/internal/config"
	"ctleak/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// verdictExit carries a non-zero status for a run that completed but did not
// clear every target.
type verdictExit struct {
	code int
}

func (e *verdictExit) Error() string {
	return fmt.Sprintf("verdict exit status %d", e.code)
}

// cli holds what the persistent pre-run resolves for every subcommand.
type cli struct {
	stdout, stderr io.Writer
	cfg            *config.Config
	logger         *internal.Logger

	logLevel     string
	ledgerDriver string
	ledgerDSN    string
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "ctleak: reading .env: %v\n", err)
		return errors.ExitConfigInvalid
	}

	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ve *verdictExit
	if stderrors.As(err, &ve) {
		return ve.code
	}
	fmt.Fprintf(stderr, "ctleak: %v\n", err)
	return errors.ExitCode(err)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ctleak",
		Short:         "Detect timing leakage in code that should run in constant time",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: error|warn|info|debug|trace (default from LOG_LEVEL)")
	root.PersistentFlags().StringVar(&c.ledgerDriver, "ledger-driver", "", "Verdict ledger driver: postgres|sqlite3 (default from LEDGER_DRIVER)")
	root.PersistentFlags().StringVar(&c.ledgerDSN, "ledger-dsn", "", "Verdict ledger DSN (default from DATABASE_URL)")

	root.AddCommand(
		newRunCmd(c),
		newTargetsCmd(c),
		newHistoryCmd(c),
		newServeCmd(c),
		newOperandsCmd(c),
	)
	return root
}

// load reads the environment configuration and applies the persistent flags.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if flags.Changed("ledger-driver") {
		cfg.Ledger.Driver = c.ledgerDriver
	}
	if flags.Changed("ledger-dsn") {
		cfg.Ledger.DSN = c.ledgerDSN
	}
	c.cfg = cfg
	c.logger = internal.NewLoggerTo(c.stderr, internal.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format == "json")
	return nil
}

// exitFor ranks the outcomes of a batch of reports: any leak wins over an
// inconclusive run.
func exitFor(reports []*leakage.Report) error {
	code := 0
	for _, r := range reports {
		switch r.Outcome {
		case leakage.OutcomeLeaking:
			code = errors.ExitLeaking
		case leakage.OutcomeInconclusive:
			if code == 0 {
				code = errors.ExitInconclusive
			}
		}
	}
	if code == 0 {
		return nil
	}
	return &verdictExit{code: code}
}
