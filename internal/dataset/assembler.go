// Package dataset runs the end-to-end pipeline: it consumes recording files
// from an input directory and grows the feature dataset and tensor pair.
//
// Each file is one transaction. Its feature rows and conditioned samples are
// appended first and the source is removed only after those writes
// succeed. A failed append is rolled back before the file is reported, so
// only an interrupted run may duplicate a file's rows, and none are lost.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion-dataset/internal/conditioner"
	"github.com/banshee-data/motion-dataset/internal/config"
	"github.com/banshee-data/motion-dataset/internal/db"
	"github.com/banshee-data/motion-dataset/internal/features"
	"github.com/banshee-data/motion-dataset/internal/fsutil"
	"github.com/banshee-data/motion-dataset/internal/labels"
	"github.com/banshee-data/motion-dataset/internal/monitoring"
	"github.com/banshee-data/motion-dataset/internal/motion"
	"github.com/banshee-data/motion-dataset/internal/report"
	"github.com/banshee-data/motion-dataset/internal/security"
	"github.com/banshee-data/motion-dataset/internal/segment"
	"github.com/banshee-data/motion-dataset/internal/tensor"
	"github.com/banshee-data/motion-dataset/internal/timeutil"
)

// Ledger receives the audit trail of a run. *db.DB implements it.
type Ledger interface {
	StartRun(r db.Run) error
	RecordFile(o db.FileOutcome) error
	FinishRun(r db.Run) error
	ConsumedCount(source string) (int, error)
}

// Options configures an Assembler. Only Config is required.
type Options struct {
	Config *config.PipelineConfig

	// FS defaults to fsutil.OSFileSystem.
	FS fsutil.FileSystem
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// Ledger is optional.
	Ledger Ledger
	// Conditioner and Policy default to the ones the config selects.
	Conditioner conditioner.Conditioner
	Policy      segment.Policy
	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
}

// Assembler builds datasets from recording files.
type Assembler struct {
	cfg      *config.PipelineConfig
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	ledger   Ledger
	cond     conditioner.Conditioner
	policy   segment.Policy
	primary  motion.TextEncoding
	fallback motion.TextEncoding
	newRunID func() string
}

// New validates the configuration and resolves the pipeline stages.
func New(opts Options) (*Assembler, error) {
	if opts.Config == nil {
		return nil, errors.New("dataset: config is required")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := security.ValidateOutputs(cfg.GetInputDir(), outputPaths(cfg)...); err != nil {
		return nil, err
	}

	a := &Assembler{
		cfg:      cfg,
		fs:       opts.FS,
		clock:    opts.Clock,
		ledger:   opts.Ledger,
		cond:     opts.Conditioner,
		policy:   opts.Policy,
		newRunID: opts.NewRunID,
	}
	if a.fs == nil {
		a.fs = fsutil.OSFileSystem{}
	}
	if a.clock == nil {
		a.clock = timeutil.RealClock{}
	}
	if a.newRunID == nil {
		a.newRunID = uuid.NewString
	}

	var err error
	if a.cond == nil {
		if a.cond, err = conditioner.New(cfg); err != nil {
			return nil, err
		}
	}
	if a.policy == nil {
		if a.policy, err = segment.New(cfg); err != nil {
			return nil, err
		}
	}
	if a.primary, err = motion.LookupEncoding(cfg.GetPrimaryEncoding()); err != nil {
		return nil, fmt.Errorf("primary encoding: %w", err)
	}
	if a.fallback, err = motion.LookupEncoding(cfg.GetFallbackEncoding()); err != nil {
		return nil, fmt.Errorf("fallback encoding: %w", err)
	}
	return a, nil
}

// outputPaths lists every path a run may write for the configured target.
func outputPaths(cfg *config.PipelineConfig) []string {
	out := []string{cfg.GetFilteredOutput(), cfg.GetReportDir(), cfg.GetLedgerPath()}
	if cfg.WantsFeatures() {
		out = append(out, cfg.GetFeaturesOutput())
	}
	if cfg.WantsTensor() {
		out = append(out, cfg.GetTensorXOutput(), cfg.GetTensorYOutput(), cfg.GetTensorClassesOutput())
	}
	return out
}

// FileError is a non-fatal failure to consume one recording. The source is
// left in place.
type FileError struct {
	Source string
	Err    error
}

func (e *FileError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

// FileResult describes what the run did with one recording.
type FileResult struct {
	Source   string
	Encoding string
	Samples  int
	Segments int
	Deleted  bool
	Err      error
}

// Result summarises a run.
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// NoOp is set when the input directory held no recordings.
	NoOp bool

	Files          []FileResult
	FilesProcessed int
	FileErrors     []*FileError
	Warnings       []string

	// Skipped lists recordings left untouched because the run was cancelled.
	Skipped []string

	// Labels is the counter table after the run: base label to highest
	// suffix assigned.
	Labels map[string]int

	Segments      int
	FeatureRows   int // total rows in the feature dataset after finalizing
	TensorSamples int
	Classes       []string

	Outputs []string
	Reports []string
}

func (r *Result) warn(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	monitoring.Warnf("%s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// Run processes every recording in the input directory. Per-file failures
// are collected in Result.FileErrors; the returned error is reserved for
// failures that leave the outputs unusable (discovery, finalizing) and for
// cancellation, which is only observed between files.
func (a *Assembler) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: a.newRunID(), Started: a.clock.Now()}

	files, err := a.discover()
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		monitoring.Logf("no %s recordings in %s", a.cfg.GetFileExtension(), a.cfg.GetInputDir())
		res.NoOp = true
		res.Finished = a.clock.Now()
		return res, nil
	}

	alloc, err := labels.SeedFromDataset(a.fs, a.seedPath())
	if err != nil {
		res.warn("starting with an empty label table: %v", err)
	}

	ledgerOK := a.startRun(res)

	var (
		collector *report.Collector
		samples   []tensor.Sample
		pending   []int // files whose removal waits for the tensor write
		runErr    error
	)
	if a.cfg.GetReportDir() != "" {
		collector = report.NewCollector(0)
	}

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			runErr = err
			res.Skipped = files[i:]
			break
		}
		if ledgerOK {
			a.checkConsumed(res, path)
		}
		fr, segs, ts := a.processFile(path, alloc)
		if fr.Err != nil {
			res.FileErrors = append(res.FileErrors, &FileError{Source: path, Err: fr.Err})
			monitoring.Logf("skipped %s: %v", path, fr.Err)
			res.Files = append(res.Files, fr)
			continue
		}
		res.FilesProcessed++
		res.Segments += len(segs)
		samples = append(samples, ts...)
		if collector != nil {
			for _, s := range segs {
				collector.Add(s)
			}
		}
		res.Files = append(res.Files, fr)
		if a.cfg.WantsTensor() {
			pending = append(pending, len(res.Files)-1)
		} else {
			a.consume(res, len(res.Files)-1)
		}
		monitoring.Logf("processed %s (%s): %d samples, %d segments", path, fr.Encoding, fr.Samples, fr.Segments)
	}

	res.Labels = alloc.Snapshot()

	if err := a.finalize(res, samples); err != nil {
		runErr = errors.Join(runErr, err)
	} else {
		for _, i := range pending {
			a.consume(res, i)
		}
	}

	if collector != nil && runErr == nil {
		dir := filepath.Join(a.cfg.GetReportDir(), res.RunID)
		paths, err := report.WriteOverlays(a.fs, dir, collector)
		res.Reports = paths
		if err != nil {
			res.warn("report: %v", err)
		}
	}

	res.Finished = a.clock.Now()
	if ledgerOK {
		a.finishRun(res, runErr)
	}
	return res, runErr
}

// discover lists recordings with the configured extension, matched
// case-insensitively, in name order.
func (a *Assembler) discover() ([]string, error) {
	dir := a.cfg.GetInputDir()
	entries, err := a.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list input dir %s: %w", dir, err)
	}
	ext := a.cfg.GetFileExtension()
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// seedPath is the feature dataset, which carries every label assigned so far.
func (a *Assembler) seedPath() string {
	return a.cfg.GetFeaturesOutput()
}

// processFile runs one recording through decode, condition, segment,
// allocate and extract, then appends its rows. A non-nil FileResult.Err
// means nothing of the file was persisted by this call, unless rolling
// back a partial append failed too, in which case the error says so.
func (a *Assembler) processFile(path string, alloc *labels.Allocator) (FileResult, []motion.Segment, []tensor.Sample) {
	fr := FileResult{Source: path}

	data, err := a.fs.ReadFile(path)
	if err != nil {
		fr.Err = fmt.Errorf("read: %w", err)
		return fr, nil, nil
	}
	stream, enc, err := motion.DecodeRecording(data, path, a.primary, a.fallback)
	if err != nil {
		fr.Err = err
		return fr, nil, nil
	}
	fr.Encoding = enc
	fr.Samples = stream.Len()

	conditioned, err := a.cond.Condition(stream)
	if err != nil {
		fr.Err = fmt.Errorf("condition: %w", err)
		return fr, nil, nil
	}

	segs := a.policy.Segment(conditioned)

	var ts []tensor.Sample
	if a.cfg.WantsTensor() {
		for _, s := range segs {
			t, err := tensor.FromSegment(s, a.cfg.GetTensorLength())
			if err != nil {
				fr.Err = fmt.Errorf("resample %s: %w", s.SourceLabel, err)
				return fr, nil, nil
			}
			ts = append(ts, t)
		}
	}

	// Labels are only allocated once the file is known to be usable so a
	// rejected file does not burn counter values.
	rows := make([]features.Row, 0, len(segs))
	for i := range segs {
		segs[i].Label = alloc.Next(segs[i].SourceLabel)
		if a.cfg.WantsFeatures() {
			rows = append(rows, features.Extract(segs[i]))
		}
	}
	for i := range ts {
		ts[i].BaseLabel = labels.BaseLabel(segs[i].Label)
	}

	// The feature dataset goes first; the filtered samples follow and are
	// rolled back together with it.
	var jobs []*appendJob
	if len(rows) > 0 {
		job, err := a.prepareAppend(a.cfg.GetFeaturesOutput(), "features", func(w io.Writer, header bool) error {
			return features.WriteRows(w, rows, header)
		})
		if err != nil {
			fr.Err = err
			return fr, nil, nil
		}
		jobs = append(jobs, job)
	}
	if out := a.cfg.GetFilteredOutput(); out != "" {
		job, err := a.prepareAppend(out, "filtered samples", func(w io.Writer, header bool) error {
			return motion.WriteSamplesCSV(w, conditioned, header)
		})
		if err != nil {
			fr.Err = err
			return fr, nil, nil
		}
		jobs = append(jobs, job)
	}
	if err := a.commitAppends(jobs); err != nil {
		fr.Err = err
		return fr, nil, nil
	}

	fr.Segments = len(segs)
	return fr, segs, ts
}

// appendJob is one rendered append and the state to roll back to.
type appendJob struct {
	path   string
	what   string
	data   []byte
	size   int64
	exists bool
}

// prepareAppend renders into memory. The header is included only when the
// file is new or empty.
func (a *Assembler) prepareAppend(path, what string, render func(w io.Writer, header bool) error) (*appendJob, error) {
	job := &appendJob{path: path, what: what}
	info, err := a.fs.Stat(path)
	switch {
	case err == nil:
		job.exists = true
		job.size = info.Size()
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("append %s: %w", what, err)
	}
	var buf bytes.Buffer
	if err := render(&buf, job.size == 0); err != nil {
		return nil, fmt.Errorf("render %s: %w", what, err)
	}
	job.data = buf.Bytes()
	return job, nil
}

// commitAppends writes the jobs in order. When one fails, every job
// attempted so far is restored to its previous size.
func (a *Assembler) commitAppends(jobs []*appendJob) error {
	for i, job := range jobs {
		if err := a.appendTo(job); err != nil {
			err = fmt.Errorf("append %s: %w", job.what, err)
			if rbErr := a.rollback(jobs[:i+1]); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
	}
	return nil
}

func (a *Assembler) appendTo(job *appendJob) error {
	if err := a.ensureDir(job.path); err != nil {
		return err
	}
	w, err := a.fs.Append(job.path)
	if err != nil {
		return err
	}
	if _, err := w.Write(job.data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (a *Assembler) rollback(jobs []*appendJob) error {
	var errs []error
	for _, job := range jobs {
		var err error
		if job.exists {
			err = a.fs.Truncate(job.path, job.size)
		} else if err = a.fs.Remove(job.path); errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("roll back %s, rows may repeat on retry: %w", job.path, err))
		}
	}
	return errors.Join(errs...)
}

// consume removes a processed source unless sources are kept.
func (a *Assembler) consume(res *Result, i int) {
	if a.cfg.GetKeepSources() {
		return
	}
	fr := &res.Files[i]
	if err := a.fs.Remove(fr.Source); err != nil {
		res.warn("%s persisted but not removed, its rows will repeat on the next run: %v", fr.Source, err)
		return
	}
	fr.Deleted = true
}

// finalize recomputes label_encoded over the whole feature dataset and
// rewrites the tensor pair.
func (a *Assembler) finalize(res *Result, samples []tensor.Sample) error {
	if a.cfg.WantsFeatures() {
		path := a.cfg.GetFeaturesOutput()
		if a.fs.Exists(path) {
			classes, n, err := a.reencode(path)
			if err != nil {
				return fmt.Errorf("finalize %s: %w", path, err)
			}
			res.Classes, res.FeatureRows = classes, n
			res.Outputs = append(res.Outputs, path)
		}
	}
	if out := a.cfg.GetFilteredOutput(); out != "" && a.fs.Exists(out) {
		res.Outputs = append(res.Outputs, out)
	}
	if a.cfg.WantsTensor() {
		classes, err := a.writeTensors(samples)
		if err != nil {
			return fmt.Errorf("write tensors: %w", err)
		}
		res.TensorSamples = len(samples)
		if res.Classes == nil {
			res.Classes = classes
		}
		res.Outputs = append(res.Outputs,
			a.cfg.GetTensorXOutput(), a.cfg.GetTensorYOutput(), a.cfg.GetTensorClassesOutput())
	}
	return nil
}

func (a *Assembler) reencode(path string) ([]string, int, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var classes []string
	var n int
	err = a.replace(path, func(w io.Writer) error {
		var err error
		classes, n, err = features.Reencode(f, w)
		return err
	})
	return classes, n, err
}

func (a *Assembler) writeTensors(samples []tensor.Sample) ([]string, error) {
	length := a.cfg.GetTensorLength()
	bases := make([]string, len(samples))
	for i, s := range samples {
		bases[i] = s.BaseLabel
	}
	classes, _ := features.EncodeLabels(bases)
	y, err := tensor.OneHot(bases, classes)
	if err != nil {
		return nil, err
	}

	if err := a.replace(a.cfg.GetTensorXOutput(), func(w io.Writer) error {
		return tensor.WriteX(w, samples, length)
	}); err != nil {
		return nil, err
	}
	if err := a.replace(a.cfg.GetTensorYOutput(), func(w io.Writer) error {
		return tensor.WriteY(w, y, len(classes))
	}); err != nil {
		return nil, err
	}
	axes := make([]string, 0, len(motion.AccelAxes))
	for _, ax := range motion.AccelAxes {
		axes = append(axes, ax.String())
	}
	err = a.replace(a.cfg.GetTensorClassesOutput(), func(w io.Writer) error {
		return tensor.WriteClasses(w, tensor.Classes{
			Classes: classes,
			Samples: len(samples),
			Length:  length,
			Axes:    axes,
		})
	})
	return classes, err
}

// replace writes path through a sibling temp file and a rename so readers
// never observe a half-written output.
func (a *Assembler) replace(path string, write func(w io.Writer) error) error {
	if err := a.ensureDir(path); err != nil {
		return err
	}
	tmp := path + ".tmp"
	w, err := a.fs.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		w.Close()
		a.fs.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		a.fs.Remove(tmp)
		return err
	}
	return a.fs.Rename(tmp, path)
}

func (a *Assembler) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if _, err := a.fs.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return a.fs.MkdirAll(dir, 0755)
}

// startRun reports whether the ledger accepted the run; a ledger that fails
// here is not consulted again for this run.
func (a *Assembler) startRun(res *Result) bool {
	if a.ledger == nil {
		return false
	}
	err := a.ledger.StartRun(db.Run{
		RunID:        res.RunID,
		Started:      res.Started,
		InputDir:     a.cfg.GetInputDir(),
		Target:       a.cfg.GetTarget(),
		Filter:       a.cfg.GetFilter(),
		Segmentation: a.cfg.GetSegmentation(),
	})
	if err != nil {
		res.warn("ledger: start run: %v", err)
		return false
	}
	return true
}

// checkConsumed warns when a recording of the same path was already
// persisted and removed by an earlier run.
func (a *Assembler) checkConsumed(res *Result, path string) {
	n, err := a.ledger.ConsumedCount(path)
	if err != nil {
		res.warn("ledger: look up %s: %v", path, err)
		return
	}
	if n > 0 {
		res.warn("%s was consumed %d time(s) before, its rows repeat if it is the same recording", path, n)
	}
}

func (a *Assembler) finishRun(res *Result, runErr error) {
	for _, fr := range res.Files {
		o := db.FileOutcome{
			RunID:         res.RunID,
			Source:        fr.Source,
			Status:        db.StatusProcessed,
			Encoding:      fr.Encoding,
			Samples:       fr.Samples,
			Segments:      fr.Segments,
			SourceDeleted: fr.Deleted,
			Recorded:      res.Finished,
		}
		if fr.Err != nil {
			o.Status = db.StatusFailed
			o.Error = fr.Err.Error()
		}
		if err := a.ledger.RecordFile(o); err != nil {
			res.warn("ledger: record %s: %v", fr.Source, err)
		}
	}
	for _, path := range res.Skipped {
		o := db.FileOutcome{
			RunID:    res.RunID,
			Source:   path,
			Status:   db.StatusSkipped,
			Error:    runErr.Error(),
			Recorded: res.Finished,
		}
		if err := a.ledger.RecordFile(o); err != nil {
			res.warn("ledger: record %s: %v", path, err)
		}
	}
	run := db.Run{
		RunID:          res.RunID,
		Started:        res.Started,
		Finished:       res.Finished,
		InputDir:       a.cfg.GetInputDir(),
		Target:         a.cfg.GetTarget(),
		Filter:         a.cfg.GetFilter(),
		Segmentation:   a.cfg.GetSegmentation(),
		FilesProcessed: res.FilesProcessed,
		FilesFailed:    len(res.FileErrors),
		Segments:       res.Segments,
		Classes:        len(res.Classes),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := a.ledger.FinishRun(run); err != nil {
		res.warn("ledger: finish run: %v", err)
	}
}
