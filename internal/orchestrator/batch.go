package orchestrator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/store"
	"subgen/internal/taxonomy"
)

// Skip reasons recorded for submitted paths that never become jobs.
const (
	skipReasonNotFound = "file not found"
	skipReasonNotMedia = "not a media file"
)

// CollectMedia expands files and directories into the list of media files
// a batch will process. Missing paths and non-media files do not abort
// the batch; they come back as skip records so callers can report them.
// Media paths come back sorted for stable job ordering.
func CollectMedia(paths []string) ([]string, []store.SkippedPath, error) {
	seen := make(map[string]struct{})
	var files []string
	var skipped []store.SkippedPath

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	skip := func(path, reason string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		skipped = append(skipped, store.SkippedPath{Path: path, Reason: reason})
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			skip(path, skipReasonNotFound)
			continue
		}
		if !info.IsDir() {
			if audio.IsMediaFile(path) {
				add(path)
			} else {
				skip(path, skipReasonNotMedia)
			}
			continue
		}
		walkErr := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if audio.IsMediaFile(entry) {
				add(entry)
			} else {
				skip(entry, skipReasonNotMedia)
			}
			return nil
		})
		if walkErr != nil {
			return nil, nil, taxonomy.Wrap(taxonomy.ErrTransient, "orchestrator", "collect", path, walkErr)
		}
	}
	sort.Strings(files)
	return files, skipped, nil
}

// emptyBatchError classifies a submission where no path survived
// collection.
func emptyBatchError(skipped []store.SkippedPath) error {
	if len(skipped) == 0 {
		return taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "submit", "no media files found", nil)
	}
	allMissing := true
	for _, entry := range skipped {
		if entry.Reason != skipReasonNotFound {
			allMissing = false
			break
		}
	}
	if allMissing {
		return taxonomy.Wrap(taxonomy.ErrNotFound, "orchestrator", "submit", "no submitted paths exist", nil)
	}
	return taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "submit",
		fmt.Sprintf("no media files found, %d paths skipped", len(skipped)), nil)
}

// SubmitBatch creates a session with one pending job per media file. With
// no explicit paths the configured media folders are scanned. Incoming
// paths go through the configured path mapping first. Paths that cannot
// become jobs are recorded on the session as skip records; submission
// fails only when nothing survives collection.
func (o *Orchestrator) SubmitBatch(ctx context.Context, source string, paths []string, language string) (*store.Session, []*store.Job, error) {
	if len(paths) == 0 {
		paths = o.cfg.Processing.MediaFolders
	}
	mapped := make([]string, 0, len(paths))
	for _, path := range paths {
		mapped = append(mapped, o.cfg.PathMapping.Apply(path))
	}

	files, skipped, err := CollectMedia(mapped)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, emptyBatchError(skipped)
	}
	if language == "" {
		language = o.cfg.Processing.SubtitleLanguage
	}

	session, err := o.store.NewSession(ctx, source, len(files))
	if err != nil {
		return nil, nil, err
	}
	if len(skipped) > 0 {
		if err := o.store.SetSessionSkipped(ctx, session.ID, skipped); err != nil {
			return nil, nil, err
		}
		session.Skipped = skipped
	}
	jobs := make([]*store.Job, 0, len(files))
	for _, file := range files {
		job, err := o.store.NewJob(ctx, session.ID, file, language)
		if err != nil {
			return nil, nil, err
		}
		jobs = append(jobs, job)
	}
	o.logger.Info("batch submitted",
		logging.Int64(logging.FieldSessionID, session.ID),
		logging.String("source", source),
		logging.Int("files", len(files)),
		logging.Int("skipped_paths", len(skipped)))
	return session, jobs, nil
}

// RunSession processes every pending job in a session with bounded
// parallelism, then records the session outcome and sends the summary
// notification. Individual job failures never abort the session.
// applySkip controls whether the configured skip rules run per file.
func (o *Orchestrator) RunSession(ctx context.Context, session *store.Session, applySkip bool) error {
	started := time.Now()
	if err := o.store.UpdateSessionStatus(ctx, session.ID, store.StatusTranscribing); err != nil {
		return err
	}

	jobs, err := o.store.SessionJobs(ctx, session.ID)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.gate.Capacity())
	for _, job := range jobs {
		if job.Status != store.StatusPending {
			continue
		}
		job := job
		group.Go(func() error {
			// Job outcomes are recorded per job; the session keeps going.
			_ = o.ProcessJob(groupCtx, job, applySkip)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	counts, err := o.store.SessionCounts(ctx, session.ID)
	if err != nil {
		return err
	}
	status := store.StatusCompleted
	if counts.Total > 0 && counts.Cancelled == counts.Total {
		status = store.StatusCancelled
	}
	if err := o.store.UpdateSessionStatus(ctx, session.ID, status); err != nil {
		return err
	}
	o.logger.Info("session finished",
		logging.Int64(logging.FieldSessionID, session.ID),
		logging.Int("completed", counts.Completed),
		logging.Int("skipped", counts.Skipped),
		logging.Int("failed", counts.Failed),
		logging.Int("cancelled", counts.Cancelled))

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := o.notifier.NotifySessionCompleted(notifyCtx, counts.Completed, counts.Skipped, counts.Failed, time.Since(started)); err != nil {
		o.logger.Warn("session notification not delivered", logging.Error(err))
	}
	return nil
}

// ProcessPath runs a single file end to end inside a fresh single-job
// session. Webhook handlers use this for newly added media.
func (o *Orchestrator) ProcessPath(ctx context.Context, source, mediaPath string) (*store.Job, error) {
	session, jobs, err := o.SubmitBatch(ctx, source, []string{mediaPath}, "")
	if err != nil {
		return nil, err
	}
	if err := o.RunSession(ctx, session, true); err != nil {
		return nil, err
	}
	return o.store.GetJob(ctx, jobs[0].ID)
}
