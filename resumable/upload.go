package resumable

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Upload is one file's worth of data headed for the upload endpoint.
// It is owned by a single uploader at a time.
type Upload struct {
	reader      io.ReadSeeker
	size        int64
	fingerprint string
	metadata    map[string]string
}

// NewUpload wraps a seekable data source. The fingerprint identifies the
// upload for later resume; pass an empty string for one-shot uploads.
func NewUpload(reader io.ReadSeeker, size int64, fingerprint string) *Upload {
	return &Upload{
		reader:      reader,
		size:        size,
		fingerprint: fingerprint,
		metadata:    map[string]string{},
	}
}

// NewUploadFromFile builds an Upload for an open file. The fingerprint is
// derived from the file's path, size and modification time, so the same
// on-disk file maps to the same in-flight upload across restarts.
func NewUploadFromFile(file *os.File) (*Upload, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload file: %w", err)
	}
	upload := NewUpload(file, info.Size(), Fingerprint(file.Name(), info.Size(), info.ModTime().UnixNano()))
	upload.SetMetadata("filename", info.Name())
	return upload, nil
}

// Fingerprint derives the identity key used for resume lookups.
func Fingerprint(path string, size int64, modTimeNanos int64) string {
	return fmt.Sprintf("%s-%d-%d", path, size, modTimeNanos)
}

// Size returns the total byte length of the upload.
func (u *Upload) Size() int64 {
	return u.size
}

// Fingerprint returns the identity key for resume lookups, empty if the
// upload is not resumable.
func (u *Upload) Fingerprint() string {
	return u.fingerprint
}

// SetMetadata attaches a key-value pair sent with the upload creation.
func (u *Upload) SetMetadata(key, value string) {
	u.metadata[key] = value
}

// Metadata returns the metadata value for key.
func (u *Upload) Metadata(key string) string {
	return u.metadata[key]
}

// encodedMetadata renders the metadata map as the comma-separated
// "key base64(value)" list the protocol expects, in stable key order.
func (u *Upload) encodedMetadata() string {
	keys := make([]string, 0, len(u.metadata))
	for k := range u.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+" "+base64.StdEncoding.EncodeToString([]byte(u.metadata[k])))
	}
	return strings.Join(pairs, ",")
}

// Close releases the underlying data source when it is closable.
func (u *Upload) Close() error {
	if closer, ok := u.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// seekTo positions the data source at the given absolute offset.
func (u *Upload) seekTo(offset int64) error {
	if _, err := u.reader.Seek(offset, io.SeekStart); err != nil {
		return &SourceError{Err: fmt.Errorf("seek upload source to %d: %w", offset, err)}
	}
	return nil
}
