package uploadsession

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"sort"
	"sync"

	"videoingest/internal/objectstore"
	"videoingest/internal/observability/metrics"
	"videoingest/internal/videomodel"
)

// Complete finalizes the session owning videoID's upload per §4.3.4:
// CompleteMultipart (or, for single-PUT, a Head confirming the object
// landed — there is no provider-side completion step for a single PUT),
// then checksum validation, then the atomic video->processing transition
// plus outbox insert. Returns the completed video on success.
func (m *Manager) Complete(ctx context.Context, videoID, key string) (videomodel.Video, error) {
	var result videomodel.Video
	err := m.meta.CompleteUploadTx(ctx, videoID, func(v videomodel.Video, sess videomodel.UploadSession) error {
		if sess.MultipartUploadID != "" {
			if !sess.Complete() {
				return videomodel.NewValidationError("upload session %s is missing parts", sess.ID)
			}
			parts := make([]objectstore.Part, len(sess.UploadedParts))
			for i, p := range sess.UploadedParts {
				parts[i] = objectstore.Part{PartNumber: p.PartNumber, ETag: p.ETag}
			}
			sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
			if err := m.objects.CompleteMultipart(ctx, key, sess.MultipartUploadID, parts); err != nil {
				return wrapStorageErr(err)
			}
		} else if _, err := m.objects.Head(ctx, key); err != nil {
			return wrapStorageErr(err)
		}

		if err := m.validateChecksums(ctx, key, v, sess); err != nil {
			return err
		}

		result = v
		return nil
	})
	if err != nil {
		return videomodel.Video{}, err
	}
	return result, nil
}

// partRange is one registered part paired with its byte offset into the
// consolidated object, computed from the ordered uploaded-parts sizes.
type partRange struct {
	part  videomodel.Part
	start int64
}

func (m *Manager) validateChecksums(ctx context.Context, key string, v videomodel.Video, sess videomodel.UploadSession) error {
	if sess.MultipartUploadID == "" {
		if v.SourceChecksum == "" {
			return nil
		}
		return m.validateWholeFileChecksum(ctx, key, v.SourceChecksum)
	}

	ordered := append([]videomodel.Part(nil), sess.UploadedParts...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PartNumber < ordered[j].PartNumber })

	var offset int64
	ranges := make([]partRange, 0, len(ordered))
	for _, p := range ordered {
		if p.Checksum != "" {
			ranges = append(ranges, partRange{part: p, start: offset})
		}
		offset += p.Size
	}
	if len(ranges) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ValidationWall)
	defer cancel()

	parallelism := m.cfg.ValidationParallelism
	if parallelism > len(ranges) {
		parallelism = len(ranges)
	}

	rangeCh := make(chan partRange)
	errCh := make(chan error, parallelism)
	var wg sync.WaitGroup
	wg.Add(parallelism)
	for i := 0; i < parallelism; i++ {
		go func() {
			defer wg.Done()
			for pr := range rangeCh {
				if err := m.validatePartChecksum(ctx, key, pr); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}()
	}

feed:
	for _, pr := range ranges {
		select {
		case rangeCh <- pr:
		case <-ctx.Done():
			break feed
		}
	}
	close(rangeCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	if ctx.Err() != nil {
		return videomodel.NewUploadExpiredError("checksum validation exceeded the time budget")
	}
	return nil
}

func (m *Manager) validatePartChecksum(ctx context.Context, key string, pr partRange) error {
	if pr.part.Size == 0 {
		return nil
	}
	end := pr.start + pr.part.Size - 1
	reader, err := m.objects.RangeGet(ctx, key, pr.start, end)
	if err != nil {
		return wrapStorageErr(err)
	}
	defer reader.Close()

	actual, err := sha256Sum(reader)
	if err != nil {
		return videomodel.NewStorageError(videomodel.StorageTransient, err)
	}
	if actual != pr.part.Checksum {
		metrics.Default().ChecksumMismatch()
		return videomodel.NewChecksumMismatchError(pr.part.PartNumber, prefix(pr.part.Checksum), prefix(actual))
	}
	return nil
}

func (m *Manager) validateWholeFileChecksum(ctx context.Context, key, expected string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ValidationWall)
	defer cancel()
	head, err := m.objects.Head(ctx, key)
	if err != nil {
		return wrapStorageErr(err)
	}
	reader, err := m.objects.RangeGet(ctx, key, 0, head.Size-1)
	if err != nil {
		return wrapStorageErr(err)
	}
	defer reader.Close()
	actual, err := sha256Sum(reader)
	if err != nil {
		return videomodel.NewStorageError(videomodel.StorageTransient, err)
	}
	if actual != expected {
		metrics.Default().ChecksumMismatch()
		return videomodel.NewChecksumMismatchError(0, prefix(expected), prefix(actual))
	}
	return nil
}

func sha256Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func prefix(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
