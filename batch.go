package mediaforge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/mediaforge-io/mediaforge-go/resumable"
)

// BatchInfo is the API's view of a batch resource.
type BatchInfo struct {
	ID           string `json:"batch_id"`
	OK           string `json:"ok"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	URL          string `json:"batch_url"`
	ResumableURL string `json:"resumable_url"`

	StatusCode int `json:"-"`
}

// Finished reports whether the batch reached a terminal processing state.
func (i *BatchInfo) Finished() bool {
	return i.Error != "" || i.OK == "BATCH_COMPLETED" || i.OK == "BATCH_CANCELED"
}

type batchFile struct {
	field string
	path  string
}

type batchStream struct {
	field  string
	name   string
	reader io.Reader
}

// Batch is a set of files plus processing instructions uploaded and
// registered together. Files are uploaded through the resumable protocol by
// a bounded pool of workers; the batch exposes pool-level pause, resume and
// abort controls. A single file's fatal error fails the whole batch, since
// processing needs the full file set.
type Batch struct {
	client   *Client
	steps    *Steps
	options  map[string]interface{}
	listener ProgressListener

	files     []batchFile
	streams   []batchStream
	fileCount int

	maxParallelUploads int
	resumableClient    *resumable.Client

	mu            sync.Mutex
	active        map[*uploadWorker]struct{}
	queue         []*resumable.Upload
	started       int
	remaining     int
	uploadedBytes int64
	totalBytes    int64
	aborted       bool
	finishedFired bool
	failureFired  bool
	saveErr       error
}

// NewBatch creates an empty batch bound to the client.
func (c *Client) NewBatch() *Batch {
	return &Batch{
		client:             c,
		steps:              NewSteps(),
		options:            map[string]interface{}{},
		listener:           nopListener{},
		maxParallelUploads: c.config.MaxParallelUploads,
		active:             map[*uploadWorker]struct{}{},
	}
}

// AddStep appends a processing step executed by the named robot.
func (b *Batch) AddStep(name, robot string, options map[string]interface{}) {
	b.steps.Add(name, robot, options)
}

// SetTemplateID processes the batch with a stored template instead of
// inline steps.
func (b *Batch) SetTemplateID(templateID string) {
	b.options["template_id"] = templateID
}

// SetOption sets an arbitrary batch parameter.
func (b *Batch) SetOption(key string, value interface{}) {
	b.options[key] = value
}

// SetMaxParallelUploads bounds the number of concurrently uploading files.
func (b *Batch) SetMaxParallelUploads(max int) error {
	if max < 1 {
		return localError(fmt.Sprintf("max parallel uploads must be at least 1, got %d", max), nil)
	}
	b.maxParallelUploads = max
	return nil
}

// SetUploadProgressListener registers the listener notified about upload
// progress and lifecycle events.
func (b *Batch) SetUploadProgressListener(listener ProgressListener) {
	if listener == nil {
		listener = nopListener{}
	}
	b.listener = listener
}

// AddFile adds a local file under the given form field name. An empty field
// name is assigned automatically.
func (b *Batch) AddFile(field, path string) {
	if field == "" {
		field = b.nextFieldName()
	}
	b.files = append(b.files, batchFile{field: field, path: path})
	b.fileCount++
}

// AddStream adds an in-memory data source. The stream is drained into
// memory at save time; within the running process it is resumable under a
// generated fingerprint.
func (b *Batch) AddStream(field, name string, reader io.Reader) {
	if field == "" {
		field = b.nextFieldName()
	}
	b.streams = append(b.streams, batchStream{field: field, name: name, reader: reader})
	b.fileCount++
}

// AddFilesGlob adds every file matching the doublestar pattern.
func (b *Batch) AddFilesGlob(pattern string) error {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return localError("glob upload files", err)
	}
	if len(matches) == 0 {
		return localError(fmt.Sprintf("no files match pattern %q", pattern), nil)
	}
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return localError("stat matched file", err)
		}
		if info.IsDir() {
			continue
		}
		b.AddFile("", match)
	}
	return nil
}

func (b *Batch) nextFieldName() string {
	if b.fileCount == 0 {
		return "file"
	}
	return "file_" + strconv.Itoa(b.fileCount)
}

// Save registers the batch with the API and uploads its files. In threaded
// mode workers are spawned up to the parallel-upload limit and Save returns
// immediately; progress arrives through the listener. Otherwise Save blocks
// until every file uploaded sequentially.
//
// When batch creation is rejected (including a rate-limit response whose
// retry budget ran out) the returned BatchInfo carries the status code and
// no uploads are started; callers must inspect it.
func (b *Batch) Save(ctx context.Context, threaded bool) (*BatchInfo, error) {
	params := map[string]interface{}{}
	for k, v := range b.options {
		params[k] = v
	}
	if !b.steps.Empty() {
		params["steps"] = b.steps.toMap()
	}
	params["batch_id"] = newBatchID()

	extra := map[string]string{
		"resumable_num_expected_files": strconv.Itoa(b.fileCount),
	}

	resp, err := newRequest(b.client).post(ctx, "/batches", params, extra, nil, nil)
	if err != nil {
		return nil, err
	}
	info := &BatchInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	if info.StatusCode < 200 || info.StatusCode >= 300 || info.ResumableURL == "" {
		return info, nil
	}

	uploads, totalBytes, err := b.buildUploads(info)
	if err != nil {
		return nil, err
	}
	b.resumableClient = b.client.newResumableClient(info.ResumableURL)

	b.mu.Lock()
	b.totalBytes = totalBytes
	b.remaining = len(uploads)
	b.mu.Unlock()

	if len(uploads) == 0 {
		b.fireFinished()
		return info, nil
	}

	if threaded {
		b.mu.Lock()
		limit := b.maxParallelUploads
		if limit > len(uploads) {
			limit = len(uploads)
		}
		b.queue = uploads[limit:]
		starting := uploads[:limit]
		b.mu.Unlock()

		for _, upload := range starting {
			b.startWorker(upload)
		}
		return info, nil
	}

	for _, upload := range uploads {
		b.startWorkerInline(upload)
		b.mu.Lock()
		aborted := b.aborted
		saveErr := b.saveErr
		b.mu.Unlock()
		if aborted {
			return info, saveErr
		}
	}
	return info, nil
}

// buildUploads opens every file and wraps it for the resumable protocol.
// Each file maps to exactly one upload job over its lifetime; resume reuses
// the fingerprint rather than creating a duplicate.
func (b *Batch) buildUploads(info *BatchInfo) ([]*resumable.Upload, int64, error) {
	uploads := make([]*resumable.Upload, 0, len(b.files))
	var totalBytes int64
	for _, f := range b.files {
		file, err := os.Open(f.path)
		if err != nil {
			return nil, 0, localError("open upload file", err)
		}
		upload, err := resumable.NewUploadFromFile(file)
		if err != nil {
			_ = file.Close()
			return nil, 0, localError("prepare upload", err)
		}
		upload.SetMetadata("fieldname", f.field)
		upload.SetMetadata("filename", filepath.Base(f.path))
		upload.SetMetadata("batch_url", info.URL)
		uploads = append(uploads, upload)
		totalBytes += upload.Size()
	}
	for _, s := range b.streams {
		data, err := io.ReadAll(s.reader)
		if err != nil {
			return nil, 0, localError("read upload stream", err)
		}
		upload := resumable.NewUpload(bytes.NewReader(data), int64(len(data)), "stream-"+newBatchID())
		upload.SetMetadata("fieldname", s.field)
		upload.SetMetadata("filename", s.name)
		upload.SetMetadata("batch_url", info.URL)
		uploads = append(uploads, upload)
		totalBytes += upload.Size()
	}
	return uploads, totalBytes, nil
}

func (b *Batch) startWorker(upload *resumable.Upload) {
	w := newUploadWorker(b, upload)

	b.mu.Lock()
	if b.aborted {
		b.mu.Unlock()
		return
	}
	b.active[w] = struct{}{}
	b.started++
	index := b.started
	b.mu.Unlock()

	b.notifyStarting(index)
	go w.run()
}

func (b *Batch) startWorkerInline(upload *resumable.Upload) {
	w := newUploadWorker(b, upload)

	b.mu.Lock()
	b.active[w] = struct{}{}
	b.started++
	index := b.started
	b.mu.Unlock()

	b.notifyStarting(index)
	w.run()
}

// workerTerminated removes the worker from the active set, launches the next
// queued upload unless the batch was aborted, and fires Finished exactly
// once when the last upload reached a terminal state.
func (b *Batch) workerTerminated(w *uploadWorker) {
	b.mu.Lock()
	delete(b.active, w)
	b.remaining--
	if err := w.upload.Close(); err != nil {
		b.client.logger.Warnf("close upload source for %s: %s", w.name, err)
	}

	var next *resumable.Upload
	if !b.aborted && len(b.queue) > 0 {
		next = b.queue[0]
		b.queue = b.queue[1:]
	}
	fireFinished := next == nil && !b.aborted && b.remaining == 0 && !b.finishedFired
	if fireFinished {
		b.finishedFired = true
	}
	b.mu.Unlock()

	if next != nil {
		b.startWorker(next)
		return
	}
	if fireFinished {
		b.client.logger.Debugf("All uploads finished")
		b.listener.Finished()
	}
}

func (b *Batch) fireFinished() {
	b.mu.Lock()
	if b.finishedFired {
		b.mu.Unlock()
		return
	}
	b.finishedFired = true
	b.mu.Unlock()
	b.listener.Finished()
}

// workerFailed reports the first fatal worker error and aborts the whole
// batch: partial per-file success is not a meaningful outcome.
func (b *Batch) workerFailed(w *uploadWorker, err error) {
	b.mu.Lock()
	if b.aborted || b.failureFired {
		b.mu.Unlock()
		return
	}
	b.failureFired = true
	b.saveErr = err
	b.mu.Unlock()

	b.client.logger.Errorf("Upload %s failed, aborting batch: %s", w.name, err)
	b.listener.Failed(err)
	b.AbortUploads()
}

func (b *Batch) updateProgress(n int64) {
	b.mu.Lock()
	b.uploadedBytes += n
	uploaded, total := b.uploadedBytes, b.totalBytes
	b.mu.Unlock()

	b.client.logger.Debugf("Uploaded %s of %s", units.HumanSize(float64(uploaded)), units.HumanSize(float64(total)))
	b.listener.Progress(uploaded, total)
}

// PauseUploads pauses every currently active worker before its next chunk.
// Queued, not-yet-started uploads are simply left queued.
func (b *Batch) PauseUploads() error {
	for _, w := range b.activeWorkers() {
		if err := w.Pause(); err != nil {
			return err
		}
		b.notifyPaused(w.name)
	}
	return nil
}

// ResumeUploads resumes every paused worker from its last acknowledged
// offset.
func (b *Batch) ResumeUploads(ctx context.Context) error {
	for _, w := range b.activeWorkers() {
		if err := w.Resume(ctx); err != nil {
			return err
		}
		b.notifyResumed(w.name)
	}
	return nil
}

// AbortUploads cancels every active worker and discards queued uploads.
// Idempotent; a second call is a no-op.
func (b *Batch) AbortUploads() {
	b.mu.Lock()
	if b.aborted {
		b.mu.Unlock()
		return
	}
	b.aborted = true
	discarded := b.queue
	b.queue = nil
	workers := make([]*uploadWorker, 0, len(b.active))
	for w := range b.active {
		workers = append(workers, w)
	}
	b.mu.Unlock()

	for _, upload := range discarded {
		_ = upload.Close()
	}
	for _, w := range workers {
		w.Cancel()
	}
}

// ActiveUploadCount returns the number of currently uploading workers.
func (b *Batch) ActiveUploadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// Progress returns the aggregated uploaded and expected byte totals.
func (b *Batch) Progress() (uploadedBytes, totalBytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploadedBytes, b.totalBytes
}

func (b *Batch) activeWorkers() []*uploadWorker {
	b.mu.Lock()
	defer b.mu.Unlock()
	workers := make([]*uploadWorker, 0, len(b.active))
	for w := range b.active {
		workers = append(workers, w)
	}
	return workers
}

func (b *Batch) notifyStarting(index int) {
	if l, ok := b.listener.(ParallelUploadsListener); ok {
		l.ParallelUploadsStarting(b.maxParallelUploads, index)
	}
}

func (b *Batch) notifyPaused(name string) {
	if l, ok := b.listener.(ParallelUploadsListener); ok {
		l.ParallelUploadsPaused(name)
	}
}

func (b *Batch) notifyResumed(name string) {
	if l, ok := b.listener.(ParallelUploadsListener); ok {
		l.ParallelUploadsResumed(name)
	}
}

// newBatchID generates the client-side batch identifier.
func newBatchID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
