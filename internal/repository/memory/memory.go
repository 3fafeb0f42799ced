// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/splax/logscribe/internal/analytics"
	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
	"github.com/splax/logscribe/internal/search"
)

// Store keeps users, uploads and entries in maps guarded by one lock.
type Store struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	uploads      map[int64]domain.Upload
	entries      []domain.LogEntry
	nextUploadID int64
	nextEntryID  int64
}

var (
	_ repository.UserRepository   = (*Store)(nil)
	_ repository.UploadRepository = (*Store)(nil)
	_ repository.EntryRepository  = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[string]domain.User),
		uploads: make(map[int64]domain.Upload),
	}
}

// Ping always succeeds; it matches the health-check signature of the database store.
func (s *Store) Ping(context.Context) error { return nil }

// CreateUser inserts a user; username and email must be unique.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == user.ID ||
			strings.EqualFold(existing.Username, user.Username) ||
			strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetUserByID fetches a user by identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// CreateUpload stores upload and assigns it the next ID.
func (s *Store) CreateUpload(_ context.Context, upload *domain.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUploadID++
	upload.ID = s.nextUploadID
	if upload.Status == "" {
		upload.Status = domain.UploadProcessing
	}
	s.uploads[upload.ID] = *upload
	return nil
}

// GetUpload fetches an upload by ID.
func (s *Store) GetUpload(_ context.Context, id int64) (*domain.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// ListUploadsByUser returns the user's uploads, newest first.
func (s *Store) ListUploadsByUser(_ context.Context, userID string) ([]domain.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uploads := make([]domain.Upload, 0)
	for _, u := range s.uploads {
		if u.UserID == userID {
			uploads = append(uploads, u)
		}
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Timestamp != uploads[j].Timestamp {
			return uploads[i].Timestamp > uploads[j].Timestamp
		}
		return uploads[i].ID > uploads[j].ID
	})
	return uploads, nil
}

// CompleteUpload appends entries and marks the upload completed under one lock,
// so readers never observe a partial batch.
func (s *Store) CompleteUpload(_ context.Context, id int64, entries []domain.LogEntry, counts domain.IngestCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	upload, err := s.processingUpload(id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.nextEntryID++
		e.ID = s.nextEntryID
		e.UploadID = id
		s.entries = append(s.entries, e)
	}
	upload.Status = domain.UploadCompleted
	applyCounts(&upload, counts)
	s.uploads[id] = upload
	return nil
}

// FailUpload marks the upload failed without storing entries.
func (s *Store) FailUpload(_ context.Context, id int64, counts domain.IngestCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	upload, err := s.processingUpload(id)
	if err != nil {
		return err
	}
	upload.Status = domain.UploadFailed
	applyCounts(&upload, counts)
	s.uploads[id] = upload
	return nil
}

func (s *Store) processingUpload(id int64) (domain.Upload, error) {
	upload, ok := s.uploads[id]
	if !ok {
		return domain.Upload{}, repository.ErrNotFound
	}
	if upload.Status.Terminal() {
		return domain.Upload{}, repository.ErrInvalidTransition
	}
	return upload, nil
}

func applyCounts(upload *domain.Upload, counts domain.IngestCounts) {
	upload.Format = counts.Format
	upload.ParsedLines = counts.Parsed
	upload.SkippedLines = counts.Skipped
}

// SearchEntries returns one page of matches, newest first.
func (s *Store) SearchEntries(_ context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.LogEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, total := search.Select(s.entries, filter, limit, offset)
	return append([]domain.LogEntry(nil), page...), total, nil
}

// CountByInterval buckets entries by calendar interval.
func (s *Store) CountByInterval(_ context.Context, q domain.TimeSeriesQuery) ([]domain.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analytics.Bucketize(s.entries, q), nil
}

// CountByField counts entries per value of field.
func (s *Store) CountByField(_ context.Context, field domain.Field, uploadID *int64) ([]domain.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analytics.Distribute(s.entries, field, uploadID), nil
}

// TopMessages ranks the n most frequent messages at level.
func (s *Store) TopMessages(_ context.Context, level string, n int, uploadID *int64) ([]domain.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analytics.RankMessages(s.entries, level, n, uploadID), nil
}
