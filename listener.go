package mediaforge

// ProgressListener receives batch upload notifications. Progress fires at
// least once per uploaded chunk; Finished fires exactly once after every
// upload reached a terminal state; Failed fires on the first fatal error,
// after which the batch is aborted.
//
// Callbacks are invoked from upload worker goroutines in threaded mode, so
// implementations must be safe for concurrent use.
type ProgressListener interface {
	Progress(uploadedBytes, totalBytes int64)
	Finished()
	Failed(err error)
}

// ParallelUploadsListener is an optional extension of ProgressListener for
// worker pool lifecycle events. Listeners that do not implement it simply
// miss these notifications.
type ParallelUploadsListener interface {
	ParallelUploadsStarting(maxParallelUploads, uploadNumber int)
	ParallelUploadsPaused(name string)
	ParallelUploadsResumed(name string)
}

type nopListener struct{}

func (nopListener) Progress(uploadedBytes, totalBytes int64) {}
func (nopListener) Finished()                                {}
func (nopListener) Failed(err error)                         {}
