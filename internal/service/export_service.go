package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
	"github.com/acadhub/curricula-api/pkg/export"
	"github.com/acadhub/curricula-api/pkg/jobs"
	"github.com/acadhub/curricula-api/pkg/storage"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Export job states.
const (
	ExportJobQueued    = "QUEUED"
	ExportJobRunning   = "RUNNING"
	ExportJobCompleted = "COMPLETED"
	ExportJobFailed    = "FAILED"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportEntityReader interface {
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	ListLineage(ctx context.Context, kind models.EntityKind, baseCode string) ([]models.Entity, error)
}

type timelineReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditEvent, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Workers   int
}

// ExportJob tracks one requested export through the queue.
type ExportJob struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	EntityID    string       `json:"entity_id"`
	Format      ExportFormat `json:"format"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	URL         string       `json:"url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
}

// ExportService renders approval timelines and version lineage reports
// as downloadable files. Rendering runs on a background worker queue;
// callers poll the job until it completes and then follow the signed
// download URL.
type ExportService struct {
	entities exportEntityReader
	timeline timelineReader
	storage  exportFileStorage
	signer   *storage.SignedURLSigner
	csv      csvRenderer
	pdf      pdfRenderer
	queue    *jobs.Queue
	logger   *zap.Logger
	cfg      ExportConfig

	mu      sync.RWMutex
	jobByID map[string]*ExportJob
}

// NewExportService constructs an ExportService and its worker queue.
// Call Start before accepting requests and Stop on shutdown.
func NewExportService(
	entities exportEntityReader,
	timeline timelineReader,
	fileStore exportFileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	s := &ExportService{
		entities: entities,
		timeline: timeline,
		storage:  fileStore,
		signer:   signer,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		cfg:      cfg,
		jobByID:  make(map[string]*ExportJob),
	}
	s.queue = jobs.NewQueue("exports", s.process, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue and stops the workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// RequestTimelineExport queues an export of the entity's approval
// timeline.
func (s *ExportService) RequestTimelineExport(ctx context.Context, entityID string, format ExportFormat) (*ExportJob, error) {
	return s.request(ctx, "timeline", entityID, format)
}

// RequestLineageExport queues an export of every version sharing the
// entity's base code.
func (s *ExportService) RequestLineageExport(ctx context.Context, entityID string, format ExportFormat) (*ExportJob, error) {
	return s.request(ctx, "lineage", entityID, format)
}

// OpenDownload validates a signed token and opens the rendered file.
func (s *ExportService) OpenDownload(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "download link is invalid or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, nil
}

// JobStatus returns the current state of an export job.
func (s *ExportService) JobStatus(id string) (*ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobByID[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	copied := *job
	return &copied, nil
}

func (s *ExportService) request(ctx context.Context, kind, entityID string, format ExportFormat) (*ExportJob, error) {
	switch format {
	case ExportFormatCSV, ExportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if _, err := s.entities.GetByID(ctx, entityID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}

	job := &ExportJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		EntityID:    entityID,
		Format:      format,
		Status:      ExportJobQueued,
		RequestedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobByID[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: kind, Payload: job}); err != nil {
		s.setFailed(job.ID, "export queue is full")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export queue is full")
	}
	copied := *job
	return &copied, nil
}

func (s *ExportService) process(ctx context.Context, queued jobs.Job) error {
	job, ok := queued.Payload.(*ExportJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", queued.Payload)
	}
	s.setStatus(job.ID, ExportJobRunning)

	var (
		dataset export.Dataset
		title   string
		err     error
	)
	switch job.Kind {
	case "lineage":
		dataset, title, err = s.lineageDataset(ctx, job.EntityID)
	default:
		dataset, title, err = s.timelineDataset(ctx, job.EntityID)
	}
	if err != nil {
		s.setFailed(job.ID, err.Error())
		return err
	}

	var payload []byte
	if job.Format == ExportFormatPDF {
		payload, err = s.pdf.Render(dataset, title)
	} else {
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.setFailed(job.ID, "rendering failed")
		return fmt.Errorf("render %s export: %w", job.Kind, err)
	}

	filename := fmt.Sprintf("%s_%s.%s", job.Kind, job.ID, job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.setFailed(job.ID, "failed to store export")
		return fmt.Errorf("store %s export: %w", job.Kind, err)
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.setFailed(job.ID, "failed to sign download url")
		return fmt.Errorf("sign export url: %w", err)
	}

	s.mu.Lock()
	if tracked, ok := s.jobByID[job.ID]; ok {
		tracked.Status = ExportJobCompleted
		tracked.URL = fmt.Sprintf("%s/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
		tracked.ExpiresAt = &expiresAt
	}
	s.mu.Unlock()

	if removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("removed expired exports", zap.Int("count", len(removed)))
	}
	s.pruneJobs(time.Now().UTC())
	return nil
}

// pruneJobs drops terminal job records whose files have aged out, so
// the in-memory index does not grow for the life of the process.
func (s *ExportService) pruneJobs(now time.Time) {
	cutoff := now.Add(-s.cfg.ResultTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobByID {
		if job.Status != ExportJobCompleted && job.Status != ExportJobFailed {
			continue
		}
		if job.RequestedAt.Before(cutoff) {
			delete(s.jobByID, id)
		}
	}
}

func (s *ExportService) timelineDataset(ctx context.Context, entityID string) (export.Dataset, string, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load entity: %w", err)
	}
	events, err := s.timeline.ListByResource(ctx, resourceName(entity.Kind), entityID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load timeline: %w", err)
	}
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.Action,
			deref(event.ActorID),
			deref(event.FromStatus),
			deref(event.ToStatus),
			deref(event.Reason),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"timestamp", "action", "actor", "from", "to", "reason"},
		Rows:    rows,
	}
	return dataset, fmt.Sprintf("Approval timeline for %s", entity.VersionCode), nil
}

func (s *ExportService) lineageDataset(ctx context.Context, entityID string) (export.Dataset, string, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load entity: %w", err)
	}
	lineage, err := s.entities.ListLineage(ctx, entity.Kind, entity.BaseCode)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load lineage: %w", err)
	}
	rows := make([][]string, 0, len(lineage))
	for _, version := range lineage {
		rows = append(rows, []string{
			version.VersionCode,
			strconv.Itoa(version.Version),
			string(version.Status),
			version.Name,
			strconv.Itoa(version.Credits),
			version.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"version_code", "version", "status", "name", "credits", "updated_at"},
		Rows:    rows,
	}
	return dataset, fmt.Sprintf("Version lineage for %s", entity.BaseCode), nil
}

func (s *ExportService) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobByID[id]; ok {
		job.Status = status
	}
}

func (s *ExportService) setFailed(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobByID[id]; ok {
		job.Status = ExportJobFailed
		job.Error = message
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
