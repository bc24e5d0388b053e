package resumable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Uploader is an open handle on one in-flight upload. Chunk transmissions
// through one Uploader are strictly ordered; the handle is not safe for
// concurrent use.
type Uploader struct {
	client   *Client
	upload   *Upload
	url      string
	offset   int64
	finished bool
}

func newUploader(c *Client, upload *Upload, uploadURL string, offset int64) (*Uploader, error) {
	if err := upload.seekTo(offset); err != nil {
		return nil, err
	}
	return &Uploader{
		client: c,
		upload: upload,
		url:    uploadURL,
		offset: offset,
	}, nil
}

// Offset returns the number of bytes the server has acknowledged.
func (u *Uploader) Offset() int64 {
	return u.offset
}

// URL returns the remote upload resource.
func (u *Uploader) URL() string {
	return u.url
}

// UploadChunk transmits exactly one chunk and returns the number of bytes
// the server acknowledged. It returns io.EOF once the upload is complete.
func (u *Uploader) UploadChunk(ctx context.Context) (int, error) {
	if u.finished {
		return 0, fmt.Errorf("upload handle is closed")
	}
	if u.offset >= u.upload.Size() {
		u.complete()
		return 0, io.EOF
	}

	chunkLen := u.client.config.ChunkSize
	if remaining := u.upload.Size() - u.offset; remaining < chunkLen {
		chunkLen = remaining
	}

	var acknowledged int64
	err := u.client.withRetry(ctx, "upload chunk", func() error {
		if err := u.upload.seekTo(u.offset); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u.url, io.LimitReader(u.upload.reader, chunkLen))
		if err != nil {
			return err
		}
		u.client.setCommonHeaders(req)
		req.Header.Set("Content-Type", "application/offset+octet-stream")
		req.Header.Set("Upload-Offset", strconv.FormatInt(u.offset, 10))
		req.Header.Set("Upload-Length", strconv.FormatInt(u.upload.Size(), 10))
		req.ContentLength = chunkLen

		resp, err := u.client.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return unexpectedResponse(resp)
		}

		if header := resp.Header.Get("Upload-Offset"); header != "" {
			newOffset, err := strconv.ParseInt(header, 10, 64)
			if err != nil {
				return fmt.Errorf("parse Upload-Offset header: %w", err)
			}
			acknowledged = newOffset - u.offset
		} else {
			acknowledged = chunkLen
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	u.offset += acknowledged
	if u.offset >= u.upload.Size() {
		u.complete()
	}
	return int(acknowledged), nil
}

// Finish flushes and closes the handle. An incomplete upload keeps its
// fingerprint entry so it can be resumed later; a complete one drops it.
func (u *Uploader) Finish() {
	if u.offset >= u.upload.Size() {
		u.complete()
	}
	u.finished = true
}

func (u *Uploader) complete() {
	if u.upload.Fingerprint() != "" {
		u.client.store.Delete(u.upload.Fingerprint())
	}
}
