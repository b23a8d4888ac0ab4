package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkline/granary/internal/audit"
	"github.com/mkline/granary/internal/convert"
	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/load"
	"github.com/mkline/granary/internal/logger"
	"github.com/mkline/granary/internal/notify"
	"github.com/mkline/granary/internal/repository"
	"github.com/mkline/granary/internal/schema"
	"github.com/mkline/granary/internal/storage"
	"github.com/mkline/granary/internal/tabular"
	"github.com/mkline/granary/internal/validate"
	"github.com/mkline/granary/internal/watch"
)

// Loop drives each discovered input artifact through validation, conversion
// and loading, routes terminal outcomes, and emits the audit trail.
//
// Per-artifact state machine:
//
//	Discovered → Validating → Converting → Loading → Completed
//	                  ↓
//	             Quarantined            (NonCompliant or ParseError)
//	any step ↓
//	        FailedTransient             (I/O or load failure; state untouched,
//	                                     retried on a later cycle)
//
// Per-artifact errors never propagate out of the loop; they become audit
// events plus a state transition.
type Loop struct {
	def       *schema.Definition
	validator *validate.Validator
	converter *convert.Converter
	loader    *load.Loader
	files     *repository.ProcessedFileRepository
	auditLog  *audit.Log
	webhook   *notify.Webhook
	log       *logger.Logger

	quarantineDir string
	convertedDir  string

	// archive is optional long-term storage for loaded artifacts.
	archive       storage.ArchiveStore
	archivePrefix string

	// retryInterval is the period between automatic retries of loads whose
	// artifact was converted but never recorded as loaded.
	retryInterval time.Duration

	runID     string
	startedAt time.Time

	// mu guards the dedup sets; each artifact identity is processed by at
	// most one concurrent execution.
	mu       sync.Mutex
	inflight map[string]struct{}
	done     map[string]struct{}

	stats Stats
}

// Options carries the Loop's collaborators and destinations.
type Options struct {
	Definition    *schema.Definition
	Validator     *validate.Validator
	Converter     *convert.Converter
	Loader        *load.Loader
	Files         *repository.ProcessedFileRepository
	Audit         *audit.Log
	Webhook       *notify.Webhook
	Logger        *logger.Logger
	QuarantineDir string
	ConvertedDir  string
	Archive       storage.ArchiveStore
	ArchivePrefix string
	// RetryInterval is the period between automatic load retries; zero
	// defaults to one minute.
	RetryInterval time.Duration
}

// New creates a Loop from its collaborators.
func New(opts Options) *Loop {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Minute
	}
	return &Loop{
		def:           opts.Definition,
		validator:     opts.Validator,
		converter:     opts.Converter,
		loader:        opts.Loader,
		files:         opts.Files,
		auditLog:      opts.Audit,
		webhook:       opts.Webhook,
		log:           opts.Logger,
		quarantineDir: opts.QuarantineDir,
		convertedDir:  opts.ConvertedDir,
		archive:       opts.Archive,
		archivePrefix: opts.ArchivePrefix,
		retryInterval: opts.RetryInterval,
		runID:         uuid.New().String(),
		startedAt:     time.Now(),
		inflight:      make(map[string]struct{}),
		done:          make(map[string]struct{}),
	}
}

// RunID returns this process run's identifier.
func (l *Loop) RunID() string {
	return l.runID
}

// Run consumes arrival events until ctx is cancelled. Cancellation is a
// clean shutdown: the artifact in flight finishes processing to a terminal
// state before Run returns, so no partial files are left visible.
// Parameters:
//   - ctx: loop lifetime; cancel to shut down.
//   - events: arrival events from one or more detectors.
// Returns:
//   - error: ctx.Err() after shutdown.
func (l *Loop) Run(ctx context.Context, events <-chan watch.Event) error {
	l.auditLog.Append(audit.KindWatchStart, "", "watching dataset %s (run %s)", l.def.Dataset, l.runID)
	l.log.WithFields(logger.Fields{
		logger.FieldRunID:   l.runID,
		logger.FieldDataset: l.def.Dataset,
	}).Info("Ingest loop started")

	// Failed loads leave their artifact in the converted location and the
	// input already deleted, so no detector will re-announce them; they are
	// retried here on a timer.
	retry := time.NewTicker(l.retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.WithField(logger.FieldRunID, l.runID).Info("Ingest loop stopped")
			return ctx.Err()
		case <-retry.C:
			if err := l.Recover(context.WithoutCancel(ctx)); err != nil {
				l.log.WithError(err).Warn("Load retry pass failed")
			}
		case ev := <-events:
			// Once picked up, the artifact runs to a terminal state even if
			// shutdown begins meanwhile.
			l.handle(context.WithoutCancel(ctx), ev)
		}
	}
}

// handle deduplicates and processes one arrival event.
func (l *Loop) handle(ctx context.Context, ev watch.Event) {
	identity := ev.Identity()

	l.mu.Lock()
	if _, dup := l.done[identity]; dup {
		l.mu.Unlock()
		return
	}
	if _, busy := l.inflight[identity]; busy {
		l.mu.Unlock()
		return
	}
	l.inflight[identity] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.inflight, identity)
		l.mu.Unlock()
	}()

	// A completed artifact is not reprocessed even across restarts; the
	// ledger is checked once per identity.
	pf, err := l.files.Get(ctx, filepath.Base(ev.Path), ev.ModTime.Unix())
	if err != nil {
		l.log.WithError(err).WithField(logger.FieldArtifact, ev.Path).Warn("Ledger lookup failed")
	}
	if pf != nil {
		l.markDone(identity)
		return
	}

	l.stats.discovered.Add(1)
	l.process(ctx, ev, identity)
}

// process drives one artifact through the pipeline stages.
func (l *Loop) process(ctx context.Context, ev watch.Event, identity string) {
	name := filepath.Base(ev.Path)
	log := l.log.WithFields(logger.Fields{
		logger.FieldArtifact: name,
		logger.FieldRunID:    l.runID,
	})

	// Validating: header first, so a mismatched file is rejected without a
	// full parse.
	f, err := tabular.Open(ev.Path, l.def)
	if err != nil {
		var parseErr *tabular.ParseError
		if errors.As(err, &parseErr) {
			l.quarantine(ctx, ev, identity, audit.KindParseFailure, parseErr.Err.Error())
			return
		}
		if os.IsNotExist(errors.Unwrap(err)) || os.IsNotExist(err) {
			// The file was removed between discovery and open; nothing to do.
			return
		}
		l.transient(ev, log, "open input", err)
		return
	}

	if verdict := l.validator.CheckHeader(f.Header()); !verdict.Compliant {
		f.Close()
		l.quarantine(ctx, ev, identity, audit.KindValidationFailure, verdict.Reason)
		return
	}

	rs, err := f.ReadAll()
	f.Close()
	if err != nil {
		var parseErr *tabular.ParseError
		if errors.As(err, &parseErr) {
			l.quarantine(ctx, ev, identity, audit.KindParseFailure, parseErr.Err.Error())
			return
		}
		l.transient(ev, log, "read input", err)
		return
	}

	verdict, cleaned, removed := l.validator.Validate(rs)
	if removed > 0 {
		l.stats.rowsRemoved.Add(int64(removed))
		l.auditLog.Append(audit.KindRowsRemoved, name, "dropped %d row(s) with empty required fields", removed)
	}
	if !verdict.Compliant {
		l.quarantine(ctx, ev, identity, audit.KindValidationFailure, verdict.Reason)
		return
	}

	// Converting.
	artifact, err := l.converter.Convert(ctx, cleaned, ev.Path)
	if err != nil {
		l.stats.transient.Add(1)
		l.auditLog.AppendError(audit.KindConversionFailure, name, "conversion failed: %v", err)
		log.WithError(err).Error("Conversion failed; input left for retry")
		return
	}
	l.auditLog.Append(audit.KindConversionSuccess, name, "converted %d row(s) to %s", cleaned.Len(), filepath.Base(artifact))

	// The published artifact is the durable recovery point from here on;
	// the input is removed so it is not discovered again.
	if err := os.Remove(ev.Path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to remove input after conversion")
	}

	// Loading.
	rows, err := l.loader.Load(ctx, artifact)
	if err != nil {
		l.stats.transient.Add(1)
		l.auditLog.AppendError(audit.KindLoadFailure, name, "load failed, artifact retained at %s: %v", artifact, err)
		log.WithError(err).Error("Load failed; artifact retained for retry")
		l.webhook.Send(ctx, string(audit.KindLoadFailure), name, err.Error())
		return
	}

	l.archiveArtifact(ctx, log, artifact)

	if err := l.files.Record(ctx, &domain.ProcessedFile{
		Name:     name,
		ModTime:  ev.ModTime.Unix(),
		Status:   domain.FileStatusLoaded,
		Artifact: artifact,
		Rows:     rows,
	}); err != nil {
		log.WithError(err).Warn("Failed to record loaded artifact in ledger")
	}

	l.markDone(identity)
	l.stats.loaded.Add(1)
	l.stats.rowsLoaded.Add(rows)
	l.auditLog.Append(audit.KindLoadSuccess, name, "loaded %d row(s)", rows)
	log.WithField(logger.FieldRows, rows).Info("Artifact completed")
}

// quarantine moves the original artifact, unmodified, to the quarantine
// location and records the reason.
func (l *Loop) quarantine(ctx context.Context, ev watch.Event, identity string, kind audit.Kind, reason string) {
	name := filepath.Base(ev.Path)
	log := l.log.WithField(logger.FieldArtifact, name)

	if err := os.MkdirAll(l.quarantineDir, 0o755); err != nil {
		l.transient(ev, log, "prepare quarantine dir", err)
		return
	}
	dest := filepath.Join(l.quarantineDir, name)
	if err := os.Rename(ev.Path, dest); err != nil {
		l.transient(ev, log, "move to quarantine", err)
		return
	}

	if err := l.files.Record(ctx, &domain.ProcessedFile{
		Name:    name,
		ModTime: ev.ModTime.Unix(),
		Status:  domain.FileStatusQuarantined,
		Reason:  reason,
	}); err != nil {
		log.WithError(err).Warn("Failed to record quarantined artifact in ledger")
	}

	l.markDone(identity)
	l.stats.quarantined.Add(1)
	l.auditLog.AppendError(kind, name, "%s", reason)
	l.auditLog.Append(audit.KindQuarantine, name, "moved to %s", dest)
	log.WithField("reason", reason).Warn("Artifact quarantined")
	l.webhook.Send(ctx, string(audit.KindQuarantine), name, reason)
}

// transient records a FailedTransient outcome: state is left untouched so
// the next cycle retries from the last durable checkpoint.
func (l *Loop) transient(ev watch.Event, log *logger.Logger, stage string, err error) {
	l.stats.transient.Add(1)
	l.auditLog.AppendError(audit.KindTransientFailure, filepath.Base(ev.Path), "%s: %v", stage, err)
	log.WithError(err).Warnf("Transient failure (%s); will retry", stage)
}

// archiveArtifact uploads the loaded artifact to long-term storage.
// Best-effort: the artifact stays in the converted location either way.
func (l *Loop) archiveArtifact(ctx context.Context, log *logger.Logger, artifact string) {
	if l.archive == nil {
		return
	}
	f, err := os.Open(artifact)
	if err != nil {
		log.WithError(err).Warn("Failed to open artifact for archiving")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.WithError(err).Warn("Failed to stat artifact for archiving")
		return
	}

	key := filepath.Base(artifact)
	if l.archivePrefix != "" {
		key = l.archivePrefix + "/" + key
	}
	// A retried load re-reaches this point with the same artifact; skip the
	// upload if a previous attempt already archived it.
	if ok, err := l.archive.Exists(ctx, key); err == nil && ok {
		return
	}
	if err := l.archive.Upload(ctx, key, f, info.Size(), "application/octet-stream"); err != nil {
		log.WithError(err).Warn("Failed to archive artifact")
		return
	}
	log.WithField(logger.FieldSize, info.Size()).Debug("Artifact archived")
}

func (l *Loop) markDone(identity string) {
	l.mu.Lock()
	l.done[identity] = struct{}{}
	l.mu.Unlock()
}

// Recover retries loads for artifacts that were converted but whose load
// never completed, e.g. after a crash between conversion and load or a
// store outage during a previous load attempt. The converted artifact is
// the sole recovery point: its source input was already removed. Runs once
// at startup and again on the loop's retry timer.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil only if the converted directory cannot be read.
func (l *Loop) Recover(ctx context.Context) error {
	entries, err := os.ReadDir(l.convertedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan converted dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".parquet" {
			continue
		}
		artifact := filepath.Join(l.convertedDir, entry.Name())

		pf, err := l.files.GetByArtifact(ctx, artifact)
		if err != nil {
			l.log.WithError(err).WithField(logger.FieldArtifact, entry.Name()).Warn("Ledger lookup failed during recovery")
			continue
		}
		if pf != nil {
			continue
		}

		rows, err := l.loader.Load(ctx, artifact)
		if err != nil {
			l.stats.transient.Add(1)
			l.auditLog.AppendError(audit.KindLoadFailure, entry.Name(), "recovery load failed, artifact retained: %v", err)
			continue
		}

		l.archiveArtifact(ctx, l.log.WithField(logger.FieldArtifact, entry.Name()), artifact)

		info, _ := entry.Info()
		var modTime int64
		if info != nil {
			modTime = info.ModTime().Unix()
		}
		if err := l.files.Record(ctx, &domain.ProcessedFile{
			Name:     entry.Name(),
			ModTime:  modTime,
			Status:   domain.FileStatusLoaded,
			Artifact: artifact,
			Rows:     rows,
		}); err != nil {
			l.log.WithError(err).Warn("Failed to record recovered artifact in ledger")
		}

		l.stats.loaded.Add(1)
		l.stats.rowsLoaded.Add(rows)
		l.auditLog.Append(audit.KindLoadSuccess, entry.Name(), "recovered: loaded %d row(s)", rows)
	}

	return nil
}
