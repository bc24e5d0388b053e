package mediaforge

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/mediaforge-io/mediaforge-go/resumable"
)

type workerState int

const (
	workerCreated workerState = iota
	workerRunning
	workerPaused
	workerCancelled
	workerCompleted
	workerFailed
)

// uploadWorker drives one file's resumable upload to completion, chunk by
// chunk. Its state is guarded by one mutex/cond pair; Pause, Resume and
// Cancel are safe to call concurrently with the worker's own loop, and the
// loop consumes state changes at the top of each chunk iteration, so an
// in-flight chunk always completes before a pause takes effect.
type uploadWorker struct {
	name   string
	batch  *Batch
	upload *resumable.Upload

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	state    workerState
	parked   bool
	uploader *resumable.Uploader
}

func newUploadWorker(batch *Batch, upload *resumable.Upload) *uploadWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &uploadWorker{
		name:   "upload-" + upload.Metadata("filename"),
		batch:  batch,
		upload: upload,
		ctx:    ctx,
		cancel: cancel,
		state:  workerCreated,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// run executes the chunk loop until the upload completes, fails or is
// cancelled. It reports the terminal state to the batch exactly once.
func (w *uploadWorker) run() {
	uploader, err := w.batch.resumableClient.CreateOrResumeUpload(w.ctx, w.upload)
	if err != nil {
		if w.interrupted() {
			w.setState(workerCancelled)
		} else {
			w.setState(workerFailed)
			w.batch.workerFailed(w, classifyWorkerError("create upload for "+w.name, err))
		}
		w.batch.workerTerminated(w)
		return
	}

	w.mu.Lock()
	w.uploader = uploader
	if w.state == workerCreated {
		w.state = workerRunning
	}
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if w.state == workerPaused {
			// A pause that landed while the final chunk was in flight
			// arrived after the upload already completed; don't park, or
			// nothing would ever wake the worker again.
			if w.uploader.Offset() >= w.upload.Size() {
				w.state = workerCompleted
				w.uploader.Finish()
				w.cond.Broadcast()
				w.mu.Unlock()
				w.batch.workerTerminated(w)
				return
			}
			// Close the handle so the upload stays resumable, then block
			// until Resume re-establishes it.
			w.uploader.Finish()
			w.parked = true
			w.cond.Broadcast()
			for w.state == workerPaused {
				w.cond.Wait()
			}
			w.parked = false
		}
		if w.state == workerCancelled {
			w.uploader.Finish()
			w.mu.Unlock()
			w.batch.workerTerminated(w)
			return
		}
		current := w.uploader
		w.mu.Unlock()

		n, err := current.UploadChunk(w.ctx)
		if errors.Is(err, io.EOF) {
			w.setState(workerCompleted)
			w.batch.workerTerminated(w)
			return
		}
		if err != nil {
			if w.interrupted() {
				w.setState(workerCancelled)
			} else {
				w.setState(workerFailed)
				w.batch.workerFailed(w, classifyWorkerError("upload chunk for "+w.name, err))
			}
			w.batch.workerTerminated(w)
			return
		}
		if n > 0 {
			w.batch.updateProgress(int64(n))
		}
	}
}

// Pause blocks future chunk transmissions. The in-flight chunk completes
// first. Requires resuming support so the upload can be re-established.
func (w *uploadWorker) Pause() error {
	if !w.batch.resumableClient.ResumingEnabled() {
		return localError("cannot pause "+w.name+": resuming has been disabled", nil)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == workerRunning || w.state == workerCreated {
		w.state = workerPaused
	}
	return nil
}

// Resume re-opens the upload handle via fingerprint lookup on the caller's
// goroutine and unblocks the chunk loop.
func (w *uploadWorker) Resume(ctx context.Context) error {
	w.mu.Lock()
	// Wait until the loop parks: re-opening the handle earlier would seek
	// the shared data source under an in-flight chunk and could capture a
	// stale offset.
	for w.state == workerPaused && !w.parked {
		w.cond.Wait()
	}
	if w.state != workerPaused {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	uploader, err := w.batch.resumableClient.ResumeUpload(ctx, w.upload)
	if errors.Is(err, resumable.ErrFingerprintNotFound) || errors.Is(err, resumable.ErrResumingDisabled) {
		return localError("resume "+w.name, err)
	}
	if err != nil {
		return requestError("resume "+w.name, err)
	}

	w.mu.Lock()
	w.uploader = uploader
	if w.state == workerPaused {
		w.state = workerRunning
	}
	w.cond.Broadcast()
	w.mu.Unlock()
	return nil
}

// Cancel interrupts the worker. A blocked wait is woken and in-flight I/O is
// aborted through the worker's context; the worker treats either as
// cancellation, not success.
func (w *uploadWorker) Cancel() {
	w.mu.Lock()
	switch w.state {
	case workerCompleted, workerFailed, workerCancelled:
		w.mu.Unlock()
		return
	default:
		w.state = workerCancelled
	}
	w.cond.Broadcast()
	w.mu.Unlock()
	w.cancel()
}

func (w *uploadWorker) setState(state workerState) {
	w.mu.Lock()
	w.state = state
	w.cond.Broadcast()
	w.mu.Unlock()
}

// classifyWorkerError keeps the error taxonomy intact: failures in the local
// data source (seek, read) are local-operation errors, everything else from
// an upload call crossed the network boundary.
func classifyWorkerError(message string, err error) error {
	var srcErr *resumable.SourceError
	if errors.As(err, &srcErr) {
		return localError(message, err)
	}
	return requestError(message, err)
}

// interrupted reports whether the worker was cancelled, so an error from a
// blocking call is classified as cancellation rather than failure.
func (w *uploadWorker) interrupted() bool {
	if w.ctx.Err() != nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == workerCancelled
}
