package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"candlestick/internal/usecase"
	applogger "candlestick/pkg/logger"
	"candlestick/pkg/util"
)

// ErrUsage is returned for unknown commands and malformed arguments.
var ErrUsage = errors.New("usage")

const usage = `usage: candlestick [-config path] <command> [args]

commands:
  fetch [-exchange X] <symbol> <resolution>       download the full history of a series
  update <symbols|all> <resolution>               download new bars for comma separated symbols
  import <file>                                   create instruments from a YAML list
  export [-exchange X] <symbol> <resolution> <file>   write a stored series to parquet
`

// Runner executes the management commands against the use cases.
type Runner struct {
	instruments *usecase.InstrumentsUseCase
	bars        *usecase.BarsUseCase
	batch       *usecase.BatchUseCase
	out         io.Writer
	log         *applogger.Logger
}

func NewRunner(instruments *usecase.InstrumentsUseCase, bars *usecase.BarsUseCase, batch *usecase.BatchUseCase) *Runner {
	return &Runner{instruments: instruments, bars: bars, batch: batch, out: os.Stdout}
}

// SetOutput redirects command output, stdout by default.
func (r *Runner) SetOutput(w io.Writer) { r.out = w }

// SetLogger sets an optional logger.
func (r *Runner) SetLogger(l *applogger.Logger) { r.log = l }

// Usage prints the command summary.
func (r *Runner) Usage() { fmt.Fprint(r.out, usage) }

// Run dispatches args[0] to its command.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", ErrUsage)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "fetch":
		return r.fetch(ctx, rest)
	case "update":
		return r.update(ctx, rest)
	case "import":
		return r.importFile(ctx, rest)
	case "export":
		return r.export(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (r *Runner) flags(name string, nargs int, args []string) (*flag.FlagSet, *string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	exchange := fs.String("exchange", "", "instrument exchange")
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrUsage, name, err)
	}
	if fs.NArg() != nargs {
		return nil, nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrUsage, name, nargs, fs.NArg())
	}
	return fs, exchange, nil
}

func (r *Runner) fetch(ctx context.Context, args []string) error {
	fs, exchange, err := r.flags("fetch", 2, args)
	if err != nil {
		return err
	}
	symbol, res := fs.Arg(0), fs.Arg(1)

	result := r.batch.FetchOne(ctx, symbol, *exchange, res)
	if !result.OK() {
		return result.Err
	}
	fmt.Fprintf(r.out, "%d %s saved for %s\n", result.Bars, plural(result.Bars), symbol)
	return nil
}

func (r *Runner) update(ctx context.Context, args []string) error {
	fs, _, err := r.flags("update", 2, args)
	if err != nil {
		return err
	}
	target, res := fs.Arg(0), fs.Arg(1)

	all := target == "all"
	var symbols []string
	if !all {
		symbols = util.SplitList(target)
	}
	results, err := r.batch.UpdateMany(ctx, symbols, all, res)
	for _, result := range results {
		if !result.OK() {
			fmt.Fprintf(r.out, "%s: %v\n", result.Symbol, result.Err)
			continue
		}
		fmt.Fprintf(r.out, "%d %s %s saved for %s (%ss)\n",
			result.Bars, result.Resolution, plural(result.Bars), result.Symbol, seconds(result.Duration.Seconds()))
	}
	return err
}

func (r *Runner) importFile(ctx context.Context, args []string) error {
	fs, _, err := r.flags("import", 1, args)
	if err != nil {
		return err
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open %s: %w", fs.Arg(0), err)
	}
	defer f.Close()

	res, err := r.instruments.Import(ctx, f)
	if res != nil {
		for _, key := range res.Skipped {
			fmt.Fprintf(r.out, "%s already exists, skipped\n", key)
		}
		fmt.Fprintf(r.out, "%d instrument(s) created, %d skipped\n", len(res.Created), len(res.Skipped))
	}
	return err
}

func (r *Runner) export(ctx context.Context, args []string) error {
	fs, exchange, err := r.flags("export", 3, args)
	if err != nil {
		return err
	}
	symbol, res, path := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	n, err := r.bars.ExportParquet(ctx, usecase.GetBarsParams{Symbol: symbol, Exchange: *exchange, Resolution: res}, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%d %s written to %s\n", n, plural(n), path)
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "bar"
	}
	return "bars"
}

// seconds rounds to two decimals and drops trailing zeros.
func seconds(s float64) string {
	return strconv.FormatFloat(math.Round(s*100)/100, 'f', -1, 64)
}
