// Command motion-dataset consumes sensor recordings from an input directory
// and grows the training dataset built from them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/motion-dataset/internal/config"
	"github.com/banshee-data/motion-dataset/internal/dataset"
	"github.com/banshee-data/motion-dataset/internal/db"
	"github.com/banshee-data/motion-dataset/internal/fsutil"
	"github.com/banshee-data/motion-dataset/internal/version"
)

var (
	configPath = flag.String("config", "", "Pipeline config file (.json or .yaml); defaults to "+config.DefaultConfigPath+" when present")
	inputDir   = flag.String("input", "", "Override the input directory")
	target     = flag.String("target", "", "Override the artifact target: features, tensor or both")
	ledgerPath = flag.String("ledger", "", "Override the sqlite run ledger path")
	history    = flag.Int("history", 0, "Print the N most recent runs from the ledger and exit")
	showVer    = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Stdout)
	stop()
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// run holds everything that owns resources, so deferred cleanup finishes
// before main decides the exit status.
func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, *inputDir, *target, *ledgerPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var ledger *db.DB
	if path := cfg.GetLedgerPath(); path != "" {
		ledger, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer ledger.Close()
	}

	if *history > 0 {
		if ledger == nil {
			return errors.New("-history needs a ledger (-ledger or ledger_path)")
		}
		runs, err := ledger.RecentRuns(*history)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		printHistory(stdout, runs)
		return nil
	}

	opts := dataset.Options{Config: cfg, FS: fsutil.OSFileSystem{}}
	if ledger != nil {
		opts.Ledger = ledger
	}
	asm, err := dataset.New(opts)
	if err != nil {
		return fmt.Errorf("failed to configure pipeline: %w", err)
	}

	res, err := asm.Run(ctx)
	if res != nil {
		printSummary(stdout, res, fsutil.OSFileSystem{})
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	log.Printf("%s finished in %s", version.String(), res.Finished.Sub(res.Started).Round(time.Millisecond))
	return nil
}

// loadConfig reads path, or the canonical defaults file when path is empty
// and that file exists. With neither, the built-in defaults apply.
func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); errors.Is(err, fs.ErrNotExist) {
			return config.EmptyPipelineConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadPipelineConfig(path)
}

func applyOverrides(cfg *config.PipelineConfig, input, target, ledger string) {
	if input != "" {
		cfg.SetInputDir(input)
	}
	if target != "" {
		cfg.SetTarget(target)
	}
	if ledger != "" {
		cfg.SetLedgerPath(ledger)
	}
}

func printSummary(w io.Writer, res *dataset.Result, fsys fsutil.FileSystem) {
	if res.NoOp {
		fmt.Fprintln(w, "nothing to do: no recordings found")
		return
	}
	fmt.Fprintf(w, "run %s: %d file(s) processed, %d failed, %s segment(s)\n",
		res.RunID, res.FilesProcessed, len(res.FileErrors), humanize.Comma(int64(res.Segments)))
	for _, fe := range res.FileErrors {
		fmt.Fprintf(w, "  kept %v\n", fe)
	}
	if len(res.Classes) > 0 {
		fmt.Fprintf(w, "classes (%d): %v\n", len(res.Classes), res.Classes)
	}
	for _, out := range res.Outputs {
		info, err := fsys.Stat(out)
		if err != nil {
			fmt.Fprintf(w, "  %s\n", out)
			continue
		}
		fmt.Fprintf(w, "  %s (%s)\n", out, humanize.Bytes(uint64(info.Size())))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "%d file(s) left for the next run\n", len(res.Skipped))
	}
	if len(res.Labels) > 0 {
		bases := make([]string, 0, len(res.Labels))
		for base := range res.Labels {
			bases = append(bases, base)
		}
		sort.Strings(bases)
		fmt.Fprintln(w, "latest labels:")
		for _, base := range bases {
			fmt.Fprintf(w, "  %s_%d\n", base, res.Labels[base])
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func printHistory(w io.Writer, runs []db.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		state := "open"
		if !r.Finished.IsZero() {
			state = r.Finished.Sub(r.Started).Round(time.Millisecond).String()
		}
		if r.Error != "" {
			state += " error: " + r.Error
		}
		fmt.Fprintf(w, "%s  %s  %-8s files=%d failed=%d segments=%s classes=%d  %s\n",
			r.RunID, humanize.Time(r.Started), r.Target,
			r.FilesProcessed, r.FilesFailed, humanize.Comma(int64(r.Segments)), r.Classes, state)
	}
}
