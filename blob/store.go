// Package blob implements a content-addressed blob store: an immutable,
// write-once byte store keyed by the sha256 digest of its contents, fronted
// by a local-file or S3 backend via github.com/livepeer/go-tools/drivers'
// backend-agnostic OSSession.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/livepeer/go-tools/drivers"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/log"
)

// sniffLen is how much of the stream is buffered to classify content type
// from its leading bytes, matching net/http.DetectContentType's own cap.
const sniffLen = 512

// PresignTTL is how long a presigned artifact URL is valid for.
const PresignTTL = 24 * time.Hour

var ErrNotFound = errors.New("blob: not found")

// Descriptor is the metadata row kept alongside a blob's bytes. The byte
// content itself lives in the backing OSSession under its digest; this is
// what gets persisted into the jobstore `blobs` table.
type Descriptor struct {
	ID          string // sha256 hex digest, also the storage object name
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

// Store is a content-addressed facade over a single go-tools/drivers backend.
// One Store instance is wired in at process start from config.Cli.StorageURL
// and shared by every upload/pipeline stage that reads or writes bytes.
type Store struct {
	driver drivers.OSDriver
	sess   drivers.OSSession
}

// New parses osURL (file://<dir> or s3://<bucket>/<prefix>) into a driver and
// opens a single root-relative session for it, held open since the Store is
// long-lived.
func New(osURL string) (*Store, error) {
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, fmt.Errorf("blob: parsing storage url %q: %w", log.RedactURL(osURL), err)
	}
	return &Store{driver: driver, sess: driver.NewSession("")}, nil
}

// Put streams r into the store, computing its content digest as it goes, and
// returns the resulting Descriptor. Writing the same bytes twice is
// idempotent: the digest, and therefore the object name, is identical, and
// the second SaveData simply overwrites the (byte-identical) object.
func (s *Store) Put(ctx context.Context, r io.Reader) (Descriptor, error) {
	head := make([]byte, sniffLen)
	n, readErr := io.ReadFull(r, head)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		return Descriptor{}, apierrors.Wrap(apierrors.KindUnreadable, "reading upload content", readErr)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)

	dr := newDigestReader(io.MultiReader(bytes.NewReader(head), r))
	buf, err := io.ReadAll(dr)
	if err != nil {
		return Descriptor{}, apierrors.Wrap(apierrors.KindUnreadable, "reading upload content", err)
	}

	digest := dr.Digest()
	props := &drivers.FileProperties{ContentType: contentType}
	if _, err := s.sess.SaveData(ctx, digest, bytes.NewReader(buf), props, time.Minute); err != nil {
		return Descriptor{}, apierrors.Wrap(apierrors.KindTransientIO, "writing blob to storage backend", err)
	}

	return Descriptor{
		ID:          digest,
		Size:        int64(len(buf)),
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// PutFile is a convenience for stages that already hold the bytes on the
// local filesystem (ffmpeg outputs land there): it opens the file, reads it
// through Put, and returns the descriptor.
func (s *Store) PutFile(ctx context.Context, path string) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, apierrors.Wrap(apierrors.KindUnreadable, "opening file to store", err)
	}
	defer f.Close()
	return s.Put(ctx, f)
}

// Open returns a reader over the blob with the given digest.
func (s *Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	fir, err := s.sess.ReadData(ctx, id)
	if err != nil {
		if errors.Is(err, drivers.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, apierrors.Wrap(apierrors.KindTransientIO, "reading blob from storage backend", err)
	}
	return fir.Body, nil
}

// Presign returns a time-limited direct-access URL for the blob, used by the
// artifact listing endpoint so clients can fetch results without proxying
// bytes back through the API process. Backends that don't support presigning
// (e.g. the local file driver) fall back to drivers.ErrNotSupported and the
// caller should serve the bytes itself instead.
func (s *Store) Presign(id string) (string, error) {
	url, err := s.sess.Presign(id, PresignTTL)
	if err != nil {
		if errors.Is(err, drivers.ErrNotSupported) {
			return "", drivers.ErrNotSupported
		}
		return "", apierrors.Wrap(apierrors.KindTransientIO, "presigning blob url", err)
	}
	return url, nil
}

// Exists reports whether a blob with the given digest is present in the
// backend, used by crash recovery to validate a RUNNING job's input blob
// before returning it to PENDING.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := s.sess.ReadDataRange(ctx, id, "bytes=0-0"); err != nil {
		if errors.Is(err, drivers.ErrNotExist) {
			return false, nil
		}
		return false, apierrors.Wrap(apierrors.KindTransientIO, "checking blob existence", err)
	}
	return true, nil
}
