package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Recorder receives generation metrics. observability.Metrics implements it.
type Recorder interface {
	ObserveGeneration(outcome string, d time.Duration)
	SetQueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveGeneration(string, time.Duration) {}
func (nopRecorder) SetQueueDepth(int)                       {}

type ServiceConfig struct {
	Store      Store
	Generator  Generator
	Blobs      BlobStore
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Metrics    Recorder
	Logger     *slog.Logger
}

// Service owns the thumbnail lifecycle. Requests are recorded as pending and
// handed to a worker pool; every thumbnail reaches exactly one terminal
// status through Complete.
type Service struct {
	store     Store
	generator Generator
	blobs     BlobStore
	queue     *Dispatcher
	metrics   Recorder
	log       *slog.Logger
	nowFunc   func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("thumbnail store is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		store:     cfg.Store,
		generator: cfg.Generator,
		blobs:     cfg.Blobs,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		nowFunc:   time.Now,
	}
	q, err := NewDispatcher(cfg.Workers, cfg.QueueSize, cfg.JobTimeout, s.runJob)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	s.queue = q
	return s, nil
}

func (s *Service) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

func (s *Service) Stop() {
	s.queue.Stop()
}

// RequestGeneration records a pending thumbnail and queues its job. When the
// job cannot be queued the thumbnail is failed straight away and returned in
// that state.
func (s *Service) RequestGeneration(ctx context.Context, userID string, p Params) (Thumbnail, error) {
	if userID == "" {
		return Thumbnail{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	p, err := normalize(p)
	if err != nil {
		return Thumbnail{}, err
	}

	now := s.nowFunc().UTC()
	t := Thumbnail{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       p.Title,
		UserPrompt:  p.Prompt,
		Style:       p.Style,
		AspectRatio: p.AspectRatio,
		ColorScheme: p.ColorScheme,
		TextOverlay: p.TextOverlay,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return Thumbnail{}, oops.Code("THUMBNAIL_CREATE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}

	err = s.queue.Submit(Job{
		ThumbnailID: t.ID,
		UserID:      userID,
		Prompt:      BuildPrompt(p),
		AspectRatio: p.AspectRatio,
		ColorScheme: p.ColorScheme,
	})
	s.metrics.SetQueueDepth(s.queue.Len())
	if err != nil {
		s.log.Warn("thumbnail job rejected", "thumbnail_id", t.ID, "error", err)
		if _, cerr := s.Complete(ctx, t.ID, Failed()); cerr != nil {
			return Thumbnail{}, cerr
		}
		s.metrics.ObserveGeneration(string(StatusFailed), 0)
		return s.store.Get(ctx, t.ID)
	}
	return t, nil
}

// Get returns a thumbnail owned by userID. Unknown, foreign and malformed ids
// all yield ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (Thumbnail, error) {
	if !validID(id) {
		return Thumbnail{}, ErrNotFound
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Thumbnail{}, ErrNotFound
		}
		return Thumbnail{}, oops.Code("THUMBNAIL_GET_FAILED").
			With("thumbnail_id", id).
			Wrap(err)
	}
	if t.UserID != userID {
		return Thumbnail{}, ErrNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Thumbnail, error) {
	items, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("THUMBNAIL_LIST_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return oops.Code("THUMBNAIL_DELETE_FAILED").
			With("thumbnail_id", id).
			Wrap(err)
	}
	return nil
}

// Complete applies a terminal outcome to a pending thumbnail. It reports
// applied=false when the thumbnail is already terminal or has been deleted, so
// repeated signals are harmless. Malformed ids yield ErrNotFound.
func (s *Service) Complete(ctx context.Context, id string, out Outcome) (bool, error) {
	if !validID(id) {
		return false, ErrNotFound
	}
	switch out.Status {
	case StatusReady:
		if out.ImageURL == "" {
			return false, fmt.Errorf("%w: ready outcome needs an image url", ErrInvalidInput)
		}
	case StatusFailed:
		out.ImageURL = ""
	default:
		return false, fmt.Errorf("%w: status must be ready or failed", ErrInvalidInput)
	}

	applied, err := s.store.Transition(ctx, id, out, s.nowFunc().UTC())
	if err != nil {
		return false, oops.Code("THUMBNAIL_COMPLETE_FAILED").
			With("thumbnail_id", id).
			With("status", string(out.Status)).
			Wrap(err)
	}
	return applied, nil
}

// RecoverPending fails thumbnails left pending by a previous process. Run it
// before Start; it assumes a single server owns the store.
func (s *Service) RecoverPending(ctx context.Context) (int, error) {
	ids, err := s.store.PendingIDs(ctx)
	if err != nil {
		return 0, oops.Code("THUMBNAIL_RECOVER_FAILED").Wrap(err)
	}
	n := 0
	for _, id := range ids {
		applied, err := s.Complete(ctx, id, Failed())
		if err != nil {
			return n, err
		}
		if applied {
			n++
		}
	}
	return n, nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	s.metrics.SetQueueDepth(s.queue.Len())
	start := s.nowFunc()
	log := s.log.With("thumbnail_id", job.ThumbnailID)

	if t, err := s.store.Get(ctx, job.ThumbnailID); err != nil || t.Status != StatusPending {
		log.Debug("skipping thumbnail job", "reason", "no longer pending")
		return
	}

	out := s.produce(ctx, job, log)

	// Record the outcome even if the job context ran out.
	applied, err := s.Complete(context.WithoutCancel(ctx), job.ThumbnailID, out)
	if err != nil {
		log.Error("complete thumbnail", "error", err)
		return
	}
	if !applied {
		log.Info("thumbnail completion ignored", "status", out.Status)
		return
	}
	elapsed := s.nowFunc().Sub(start)
	s.metrics.ObserveGeneration(string(out.Status), elapsed)
	log.Info("thumbnail completed", "status", out.Status, "duration", elapsed)
}

func (s *Service) produce(ctx context.Context, job Job, log *slog.Logger) Outcome {
	img, err := s.generator.Generate(ctx, GenerateRequest{
		Prompt:      job.Prompt,
		AspectRatio: job.AspectRatio,
		ColorScheme: job.ColorScheme,
	})
	if err != nil {
		log.Warn("generate thumbnail", "error", err)
		return Failed()
	}
	key := BlobKey(job.UserID, job.ThumbnailID, img.ContentType, s.nowFunc())
	loc, err := s.blobs.Put(ctx, key, img.Data, img.ContentType)
	if err != nil {
		log.Warn("store thumbnail image", "key", key, "error", err)
		return Failed()
	}
	return Ready(loc)
}

// validID accepts only the canonical 36-character UUID form the service
// issues.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
