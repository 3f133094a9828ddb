package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sjsage522/srpauditor/helpers"
	"sjsage522/srpauditor/internal/annotate"
	"sjsage522/srpauditor/internal/csvio"
	"sjsage522/srpauditor/internal/dom"
	"sjsage522/srpauditor/internal/processor"
	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/internal/traverse"
	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"
	"sjsage522/srpauditor/services/publisher"

	"github.com/google/uuid"
)

// Job is one scan: a listing page and the mode to run over it
type Job struct {
	URL  string
	Mode processor.Mode
}

// Detector is a placeholder detector that can report missing credentials
// before any page is opened
type Detector interface {
	processor.PlaceholderDetector
	CheckReady() error
}

// PageOpener loads a listing page
type PageOpener func(ctx context.Context, url string) (dom.Page, error)

// Options wires the collaborators of a worker
type Options struct {
	Registry     *selector.Registry
	Detector     Detector
	Sizer        processor.ImageSizer
	OpenPage     PageOpener
	Publisher    publisher.Publisher
	Logger       helpers.LoggerInterface
	Traverse     traverse.Options
	Revisit      processor.Revisit
	AnnotateTick time.Duration
	ReportDir    string
}

// Summary describes a finished job
type Summary struct {
	RunID      string
	Site       string
	Mode       string
	Stats      traverse.Stats
	Counts     processor.Counts
	Rows       int
	ReportPath string
	// NoData is set when the run finished without anything to report
	NoData bool
	// Partial is set when the traversal guard stopped the run early
	Partial bool
}

// Worker runs scan jobs one after another
type Worker struct {
	opts Options
	now  func() time.Time
}

// NewWorker creates a new worker
func NewWorker(opts Options) *Worker {
	if opts.OpenPage == nil {
		opts.OpenPage = func(ctx context.Context, url string) (dom.Page, error) {
			return dom.Open(ctx, url, dom.Options{})
		}
	}
	if opts.ReportDir == "" {
		opts.ReportDir = "reports"
	}
	return &Worker{opts: opts, now: time.Now}
}

// Run executes jobs sequentially. A failing job does not stop the ones after
// it; cancellation does.
func (w *Worker) Run(ctx context.Context, jobs []Job) ([]Summary, error) {
	summaries := make([]Summary, 0, len(jobs))
	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary, err := w.RunJob(ctx, job)
		summaries = append(summaries, summary)
		if err != nil {
			w.logError(summary.Site, err)
			errs = append(errs, err)
		}
	}

	if w.opts.Publisher != nil {
		if err := w.opts.Publisher.TrimStreams(ctx); err != nil {
			w.logError("StreamTrimming", err)
		}
	}
	return summaries, errors.Join(errs...)
}

// RunJob resolves selectors, traverses the page, processes every batch and
// writes the report. A traversal timeout still writes what was gathered and
// is returned alongside the summary.
func (w *Worker) RunJob(ctx context.Context, job Job) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	if job.Mode == nil {
		return summary, apperrors.NewConfiguration("no processing mode selected", nil)
	}
	summary.Mode = job.Mode.Name()

	site, err := helpers.HostOf(job.URL)
	if err != nil {
		return summary, apperrors.NewConfiguration("invalid page url "+job.URL, err)
	}
	summary.Site = site
	log := logger.ForRun(summary.RunID, site, summary.Mode)

	if w.opts.Registry == nil {
		return summary, apperrors.NewConfiguration("no selector registry", nil)
	}
	cfg, err := w.opts.Registry.Resolve(ctx, site)
	if err != nil {
		return summary, err
	}

	var detector processor.PlaceholderDetector
	if _, ok := job.Mode.(processor.Placeholder); ok {
		if w.opts.Detector == nil {
			return summary, apperrors.NewConfiguration("placeholder detection needs a classifier", nil)
		}
		if err := w.opts.Detector.CheckReady(); err != nil {
			return summary, err
		}
		detector = w.opts.Detector
	}

	proc, err := processor.New(site, cfg, job.Mode, processor.Options{
		Detector:    detector,
		Sizer:       w.opts.Sizer,
		Revisit:     w.opts.Revisit,
		Diagnostics: w.opts.Logger,
	})
	if err != nil {
		return summary, err
	}

	log.Info().Str("url", job.URL).Msg("Opening page")
	page, err := w.opts.OpenPage(ctx, job.URL)
	if err != nil {
		return summary, apperrors.NewNetwork(site, "failed to open page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close page")
		}
	}()
	proc.SetAnnotator(annotate.New(page, cfg.Get(selector.KeyVehicleCard), w.opts.AnnotateTick))

	stats, runErr := traverse.New(site, cfg, w.opts.Traverse).Run(ctx, page, proc)
	summary.Stats = stats
	summary.Counts = proc.Results().Counts()
	if runErr != nil && !apperrors.IsTraversalTimeout(runErr) {
		return summary, runErr
	}
	summary.Partial = runErr != nil

	table := tableFor(job.Mode, proc.Results())
	summary.Rows = len(table.Rows)
	path, err := csvio.WriteFile(w.opts.ReportDir, site, table, w.now())
	switch {
	case errors.Is(err, csvio.ErrNoData):
		summary.NoData = true
		w.logInfo("%s: %s", site, csvio.ErrNoData)
	case err != nil:
		return summary, fmt.Errorf("write report: %w", err)
	default:
		summary.ReportPath = path
		w.logInfo("%s: wrote %d %s rows to %s", site, summary.Rows, table.Type, path)
	}

	if summary.Rows > 0 {
		w.publish(ctx, summary, table)
	}

	log.Info().
		Int("processed", summary.Counts.Processed).
		Int("skipped", summary.Counts.Skipped).
		Int("missing", summary.Counts.MissingData).
		Int("errors", summary.Counts.Errors).
		Int("hits", summary.Counts.Hits).
		Int("rows", summary.Rows).
		Bool("partial", summary.Partial).
		Msg("Scan finished")

	return summary, runErr
}

// tableFor builds the report of a finished mode
func tableFor(mode processor.Mode, results *processor.Results) csvio.Table {
	switch m := mode.(type) {
	case processor.Reconcile:
		return csvio.MismatchTable(results.Report().Rows())
	case processor.Placeholder:
		return csvio.PlaceholderTable(results.Placeholders())
	case processor.SmallImage:
		return csvio.SmallImageTable(results.SmallImages())
	case processor.Export:
		return csvio.ExportTable(results.Exports(), m.Fields)
	}
	return csvio.Table{}
}

// publish sends every report row to the publisher; failures are logged only
func (w *Worker) publish(ctx context.Context, summary Summary, table csvio.Table) {
	if w.opts.Publisher == nil {
		return
	}
	at := w.now()
	for _, row := range table.Rows {
		fields := make(map[string]string, len(table.Header))
		for i, h := range table.Header {
			if i < len(row) {
				fields[h] = row[i]
			}
		}
		err := w.opts.Publisher.Publish(ctx, publisher.Envelope{
			RunID:  summary.RunID,
			Site:   summary.Site,
			Report: table.Type,
			Fields: fields,
			At:     at,
		})
		if err != nil {
			w.logError(summary.Site, err)
			return
		}
	}
}

func (w *Worker) logError(component string, err error) {
	if w.opts.Logger != nil {
		w.opts.Logger.LogError(component, err)
	}
}

func (w *Worker) logInfo(format string, args ...interface{}) {
	if w.opts.Logger != nil {
		w.opts.Logger.LogInfo(format, args...)
	}
}
