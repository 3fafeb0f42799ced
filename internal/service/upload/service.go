package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/ingest"
	"github.com/splax/logscribe/internal/repository"
)

var (
	ErrUnsupportedType = errors.New("only .log, .txt and .json files are accepted")
	ErrTooLarge        = errors.New("upload exceeds size limit")
)

var allowedExtensions = map[string]struct{}{
	".log":  {},
	".txt":  {},
	".json": {},
}

// Submitter hands a spooled upload to background ingestion.
type Submitter interface {
	Submit(ctx context.Context, job ingest.Job)
}

// Options configures spooling.
type Options struct {
	Dir      string
	MaxBytes int64
}

// Service accepts uploaded files and reports their ingestion status.
type Service struct {
	uploads   repository.UploadRepository
	submitter Submitter
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Service.
func New(uploads repository.UploadRepository, submitter Submitter, opts Options, logger *slog.Logger) Service {
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		uploads:   uploads,
		submitter: submitter,
		opts:      opts,
		logger:    logger.With("component", "upload"),
		now:       time.Now,
	}
}

// Accept spools body to disk, records the upload as processing and schedules ingestion.
// The returned upload is still processing; callers poll Status for the outcome.
func (s Service) Accept(ctx context.Context, userID, filename string, body io.Reader) (*domain.Upload, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
		return nil, ErrUnsupportedType
	}

	path, size, err := s.spool(body)
	if err != nil {
		return nil, err
	}

	upload := &domain.Upload{
		UserID:    userID,
		Filename:  name,
		Size:      size,
		Timestamp: domain.NewUploadTimestamp(s.now()),
		Status:    domain.UploadProcessing,
	}
	if err := s.uploads.CreateUpload(ctx, upload); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("create upload: %w", err)
	}

	s.submitter.Submit(ctx, ingest.Job{Upload: *upload, Path: path})
	s.logger.Info("upload accepted", "upload_id", upload.ID, "user_id", userID, "filename", name, "size", size)
	return upload, nil
}

func (s Service) spool(body io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(s.opts.Dir, "logscribe-*.upload")
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	path := f.Name()

	src := body
	if s.opts.MaxBytes > 0 {
		src = io.LimitReader(body, s.opts.MaxBytes+1)
	}
	size, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("spool upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close spool file: %w", closeErr)
	case s.opts.MaxBytes > 0 && size > s.opts.MaxBytes:
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, size, nil
}

// Status returns the upload if it belongs to userID.
func (s Service) Status(ctx context.Context, userID string, id int64) (*domain.Upload, error) {
	upload, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, err
	}
	if upload.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return upload, nil
}

// History lists the user's uploads, newest first.
func (s Service) History(ctx context.Context, userID string) ([]domain.Upload, error) {
	uploads, err := s.uploads.ListUploadsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		uploads = []domain.Upload{}
	}
	return uploads, nil
}
