// Package memstore provides an in-process fake implementing objectstore.Store
// for fast, deterministic unit tests of the upload session manager and
// lifecycle controller.
package memstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"videoingest/internal/objectstore"
)

type object struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

type multipart struct {
	key         string
	contentType string
	parts       map[int][]byte
	initiatedAt time.Time
}

// Store is an in-memory implementation of objectstore.Store.
type Store struct {
	mu         sync.Mutex
	objects    map[string]object
	multiparts map[string]*multipart
	urlBase    string
}

// New constructs an empty in-memory store. urlBase, if non-empty, is used
// as the scheme+host prefix for minted URLs so callers can assert on them.
func New(urlBase string) *Store {
	if urlBase == "" {
		urlBase = "https://memstore.local"
	}
	return &Store{
		objects:    make(map[string]object),
		multiparts: make(map[string]*multipart),
		urlBase:    urlBase,
	}
}

func randomToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *Store) MintSinglePut(_ context.Context, key, contentType string, ttl time.Duration, _ *string) (string, error) {
	return fmt.Sprintf("%s/%s?token=%s&ttl=%d", s.urlBase, key, randomToken(), int(ttl.Seconds())), nil
}

func (s *Store) InitiateMultipart(_ context.Context, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uploadID := randomToken()
	s.multiparts[uploadID] = &multipart{key: key, contentType: contentType, parts: make(map[int][]byte), initiatedAt: time.Now().UTC()}
	return uploadID, nil
}

func (s *Store) MintPartPut(_ context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?uploadId=%s&partNumber=%d&token=%s&ttl=%d", s.urlBase, key, uploadID, partNumber, randomToken(), int(ttl.Seconds())), nil
}

// PutPart is a test helper simulating a client's PUT of part bytes against
// a previously minted URL; production code never calls this directly since
// the client talks to the object store, not the orchestrator.
func (s *Store) PutPart(uploadID string, partNumber int, data []byte) (etag string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mp, ok := s.multiparts[uploadID]
	if !ok {
		return "", fmt.Errorf("memstore: unknown multipart upload %q", uploadID)
	}
	mp.parts[partNumber] = append([]byte(nil), data...)
	return fmt.Sprintf("etag-%s-%d", uploadID, partNumber), nil
}

// PutObject is a test helper simulating a client's single PUT.
func (s *Store) PutObject(key, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType, etag: fmt.Sprintf("etag-%s", key), modified: time.Now().UTC()}
}

func (s *Store) CompleteMultipart(_ context.Context, key, uploadID string, parts []objectstore.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mp, ok := s.multiparts[uploadID]
	if !ok {
		return &objectstore.Error{Kind: objectstore.KindNotFound, Op: "complete_multipart", Key: key}
	}
	sorted := append([]objectstore.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var buf bytes.Buffer
	for i, p := range sorted {
		if p.PartNumber != i+1 {
			return &objectstore.Error{Kind: objectstore.KindPermanentFailure, Op: "complete_multipart", Key: key, Err: fmt.Errorf("non-contiguous parts")}
		}
		data, ok := mp.parts[p.PartNumber]
		if !ok {
			return &objectstore.Error{Kind: objectstore.KindPermanentFailure, Op: "complete_multipart", Key: key, Err: fmt.Errorf("missing part %d", p.PartNumber)}
		}
		buf.Write(data)
	}
	s.objects[key] = object{data: buf.Bytes(), contentType: mp.contentType, etag: fmt.Sprintf("etag-%s", key), modified: time.Now().UTC()}
	delete(s.multiparts, uploadID)
	return nil
}

func (s *Store) AbortMultipart(_ context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.multiparts, uploadID)
	return nil
}

func (s *Store) Head(_ context.Context, key string) (objectstore.HeadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return objectstore.HeadResult{}, &objectstore.Error{Kind: objectstore.KindNotFound, Op: "head", Key: key}
	}
	return objectstore.HeadResult{Size: int64(len(obj.data)), ETag: obj.etag, LastModified: obj.modified}, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *Store) RangeGet(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, &objectstore.Error{Kind: objectstore.KindNotFound, Op: "range_get", Key: key}
	}
	if start < 0 || end >= int64(len(obj.data)) || start > end {
		return nil, &objectstore.Error{Kind: objectstore.KindPermanentFailure, Op: "range_get", Key: key, Err: fmt.Errorf("range out of bounds")}
	}
	return io.NopCloser(bytes.NewReader(obj.data[start : end+1])), nil
}

func (s *Store) ListIncompleteMultipart(_ context.Context, prefix string) ([]objectstore.IncompleteUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []objectstore.IncompleteUpload
	for uploadID, mp := range s.multiparts {
		if prefix != "" && len(mp.key) < len(prefix) || (prefix != "" && mp.key[:len(prefix)] != prefix) {
			continue
		}
		results = append(results, objectstore.IncompleteUpload{Key: mp.key, UploadID: uploadID, InitiatedAt: mp.initiatedAt})
	}
	return results, nil
}

var _ objectstore.Store = (*Store)(nil)
