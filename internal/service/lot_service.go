package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"strconv"
	"strings"

	"lot_registry/internal/model"
	"lot_registry/internal/repository"
	"lot_registry/internal/storage"
)

var (
	ErrLotNotFound      = errors.New("lot not found")
	ErrPermissionDenied = errors.New("permission denied: actor is neither admin nor the lot's creator")
	ErrInvalidStatus    = errors.New("invalid status value")
	ErrValidation       = errors.New("validation failed")
	ErrPhotoNotFound    = errors.New("photo not found")
)

// LotDetail is the detail view: the lot plus its photos and its status
// history, newest change first.
type LotDetail struct {
	Lot     *model.Lot           `json:"lot"`
	Photos  []model.Photo        `json:"photos"`
	History []model.StatusChange `json:"history"`
}

// StatusResult is the outcome of a lifecycle operation. A no-op transition
// is a success with Noop set and no audit record written.
type StatusResult struct {
	Noop    bool                `json:"noop"`
	Change  *model.StatusChange `json:"change,omitempty"`
	Message string              `json:"message"`
}

// LotService defines the lot registry operations
type LotService interface {
	CreateLot(ctx context.Context, actor model.Actor, req model.CreateLotRequest, photos []*multipart.FileHeader) (*model.Lot, model.UploadSummary, error)
	GetLot(ctx context.Context, actor model.Actor, lotID int64) (*LotDetail, error)
	ListLots(ctx context.Context, actor model.Actor, filters model.LotFilters) (*model.LotListing, error)
	UpdateLot(ctx context.Context, actor model.Actor, lotID int64, req model.UpdateLotRequest, photos []*multipart.FileHeader) (*model.Lot, model.UploadSummary, error)
	DeleteLot(ctx context.Context, actor model.Actor, lotID int64) error
	ChangeStatus(ctx context.Context, actor model.Actor, lotID int64, newStatus string) (*StatusResult, error)
	ExportCSV(ctx context.Context, actor model.Actor, filters model.LotFilters) (*bytes.Buffer, error)
	GetPhotoPath(ctx context.Context, actor model.Actor, lotID, photoID int64) (string, string, error) // returns path and filename
}

type lotService struct {
	repo  repository.LotRepository
	blobs storage.BlobStore
}

// NewLotService creates a new LotService
func NewLotService(repo repository.LotRepository, blobs storage.BlobStore) LotService {
	return &lotService{repo: repo, blobs: blobs}
}

// findModifiable loads a lot and checks the admin-or-creator rule shared by
// the detail view and every write path.
func (s *lotService) findModifiable(ctx context.Context, actor model.Actor, lotID int64) (*model.Lot, error) {
	lot, err := s.repo.FindByID(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to find lot by ID: %w", err)
	}
	if lot == nil {
		return nil, ErrLotNotFound
	}
	if !model.CanModify(actor, lot) {
		return nil, ErrPermissionDenied
	}
	return lot, nil
}

func (s *lotService) CreateLot(ctx context.Context, actor model.Actor, req model.CreateLotRequest, photos []*multipart.FileHeader) (*model.Lot, model.UploadSummary, error) {
	var summary model.UploadSummary

	if !model.ValidRisk(req.Risk) {
		return nil, summary, fmt.Errorf("%w: risk must be one of %s", ErrValidation, strings.Join(model.Risks, ", "))
	}
	status := req.Status
	if status == "" {
		status = model.StatusPending
	}
	if !model.ValidStatus(status) {
		return nil, summary, fmt.Errorf("%w: status must be one of %s", ErrValidation, strings.Join(model.Statuses, ", "))
	}

	creatorID := actor.ID
	lot := &model.Lot{
		Neighborhood:     req.Neighborhood,
		MicroArea:        req.MicroArea,
		Address:          req.Address,
		ReferenceNote:    req.ReferenceNote,
		HasTrash:         req.HasTrash,
		HasStandingWater: req.HasStandingWater,
		Risk:             req.Risk,
		Status:           status,
		Notes:            req.Notes,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		CreatedBy:        &creatorID,
	}

	if err := s.repo.Create(ctx, lot); err != nil {
		return nil, summary, fmt.Errorf("failed to create lot in repo: %w", err)
	}

	summary, err := s.savePhotos(ctx, lot.ID, photos, 0, MaxPhotosAtCreation)
	if err != nil {
		return nil, summary, err
	}
	lot.PhotoCount = summary.Added
	return lot, summary, nil
}

func (s *lotService) GetLot(ctx context.Context, actor model.Actor, lotID int64) (*LotDetail, error) {
	lot, err := s.findModifiable(ctx, actor, lotID)
	if err != nil {
		return nil, err
	}

	photos, err := s.repo.ListPhotos(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lot photos: %w", err)
	}
	history, err := s.repo.ListStatusChanges(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	return &LotDetail{Lot: lot, Photos: photos, History: history}, nil
}

// ListLots resolves the actor's scope and builds the dashboard: the items
// narrowed by the filters, and the neighborhood list and totals computed
// over the whole scope regardless of the active filters.
func (s *lotService) ListLots(ctx context.Context, actor model.Actor, filters model.LotFilters) (*model.LotListing, error) {
	scope := model.ScopeFor(actor)

	items, err := s.repo.FindScoped(ctx, scope, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	neighborhoods, err := s.repo.DistinctNeighborhoods(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list neighborhoods: %w", err)
	}
	totalsByStatus, err := s.repo.CountByStatus(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals by status: %w", err)
	}
	totalsByRisk, err := s.repo.CountByRisk(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals by risk: %w", err)
	}
	totalCount, err := s.repo.CountAll(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count lots: %w", err)
	}

	return &model.LotListing{
		Items:                 items,
		DistinctNeighborhoods: neighborhoods,
		TotalsByStatus:        totalsByStatus,
		TotalsByRisk:          totalsByRisk,
		TotalCount:            totalCount,
	}, nil
}

func (s *lotService) UpdateLot(ctx context.Context, actor model.Actor, lotID int64, req model.UpdateLotRequest, photos []*multipart.FileHeader) (*model.Lot, model.UploadSummary, error) {
	var summary model.UploadSummary

	lot, err := s.findModifiable(ctx, actor, lotID)
	if err != nil {
		return nil, summary, err
	}

	// Apply updates
	if req.Neighborhood != nil {
		if *req.Neighborhood == "" {
			return nil, summary, fmt.Errorf("%w: neighborhood must not be empty", ErrValidation)
		}
		lot.Neighborhood = *req.Neighborhood
	}
	if req.MicroArea != nil {
		lot.MicroArea = req.MicroArea
	}
	if req.Address != nil {
		if *req.Address == "" {
			return nil, summary, fmt.Errorf("%w: address must not be empty", ErrValidation)
		}
		lot.Address = *req.Address
	}
	if req.ReferenceNote != nil {
		lot.ReferenceNote = req.ReferenceNote
	}
	if req.HasTrash != nil {
		lot.HasTrash = *req.HasTrash
	}
	if req.HasStandingWater != nil {
		lot.HasStandingWater = *req.HasStandingWater
	}
	if req.Risk != nil {
		if !model.ValidRisk(*req.Risk) {
			return nil, summary, fmt.Errorf("%w: risk must be one of %s", ErrValidation, strings.Join(model.Risks, ", "))
		}
		lot.Risk = *req.Risk
	}
	if req.Notes != nil {
		lot.Notes = req.Notes
	}
	if req.Latitude != nil {
		lot.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		lot.Longitude = req.Longitude
	}

	if err := s.repo.Update(ctx, lot); err != nil {
		return nil, summary, fmt.Errorf("failed to update lot in repo: %w", err)
	}

	if len(photos) > 0 {
		current, err := s.repo.CountPhotos(ctx, lotID)
		if err != nil {
			return nil, summary, fmt.Errorf("failed to count existing photos: %w", err)
		}
		remaining := MaxPhotosPerLot - current
		if remaining <= 0 {
			summary.Warning = fmt.Sprintf("this lot already has the maximum of %d photos, no new photos were saved", MaxPhotosPerLot)
		} else {
			// Indexing continues from the current count so names never collide
			// with the photos already stored.
			summary, err = s.savePhotos(ctx, lotID, photos, current, remaining)
			if err != nil {
				return nil, summary, err
			}
		}
		lot.PhotoCount = current + summary.Added
	}

	return lot, summary, nil
}

// DeleteLot removes a lot with its photos and status history in one
// transaction, then deletes the stored blobs. Blob removal after a
// committed delete is best-effort.
func (s *lotService) DeleteLot(ctx context.Context, actor model.Actor, lotID int64) error {
	if _, err := s.findModifiable(ctx, actor, lotID); err != nil {
		return err
	}

	filenames, err := s.repo.Delete(ctx, lotID)
	if err != nil {
		return fmt.Errorf("failed to delete lot in repo: %w", err)
	}
	for _, name := range filenames {
		if err := s.blobs.Delete(name); err != nil {
			log.Printf("WARN: failed to remove blob %s of deleted lot %d: %v", name, lotID, err)
		}
	}
	return nil
}

// ChangeStatus validates and applies a lifecycle transition. Setting the
// status a lot already has is a no-op: nothing mutates, no audit record is
// written, and the caller gets a success-shaped result saying so.
func (s *lotService) ChangeStatus(ctx context.Context, actor model.Actor, lotID int64, newStatus string) (*StatusResult, error) {
	lot, err := s.findModifiable(ctx, actor, lotID)
	if err != nil {
		return nil, err
	}

	if !model.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: %q is not one of %s", ErrInvalidStatus, newStatus, strings.Join(model.Statuses, ", "))
	}

	if lot.Status == newStatus {
		return &StatusResult{
			Noop:    true,
			Message: fmt.Sprintf("status is already %s", newStatus),
		}, nil
	}

	change, err := s.repo.ChangeStatus(ctx, lotID, lot.Status, newStatus, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to change lot status: %w", err)
	}
	return &StatusResult{
		Change:  change,
		Message: fmt.Sprintf("status updated from %s to %s", change.PreviousStatus, change.NewStatus),
	}, nil
}

// csvBool renders a boolean column as its fixed token.
func csvBool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// collapseNewlines replaces embedded line breaks with single spaces so a
// note never spans rows in the exported table.
func collapseNewlines(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

// ExportCSV renders the same rows the listing returns for this actor and
// filters (same scope, same id-descending order) as semicolon-delimited
// text. The delimiter is ';' because the target locale writes decimals
// with a comma.
func (s *lotService) ExportCSV(ctx context.Context, actor model.Actor, filters model.LotFilters) (*bytes.Buffer, error) {
	lots, err := s.repo.FindScoped(ctx, model.ScopeFor(actor), filters)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lots for CSV export: %w", err)
	}

	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	writer.Comma = ';'

	// Write header
	header := []string{
		"ID", "Neighborhood", "Micro-area", "Address", "Reference",
		"Has-trash", "Has-standing-water", "Risk", "Status", "Notes",
		"Created-by", "Photo-count",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write rows
	for _, l := range lots {
		var microArea, reference, notes, createdBy string
		if l.MicroArea != nil {
			microArea = *l.MicroArea
		}
		if l.ReferenceNote != nil {
			reference = *l.ReferenceNote
		}
		if l.Notes != nil {
			notes = collapseNewlines(*l.Notes)
		}
		if l.CreatedByName != nil {
			createdBy = *l.CreatedByName
		}
		row := []string{
			strconv.FormatInt(l.ID, 10),
			l.Neighborhood,
			microArea,
			l.Address,
			reference,
			csvBool(l.HasTrash),
			csvBool(l.HasStandingWater),
			l.Risk,
			l.Status,
			notes,
			createdBy,
			strconv.Itoa(l.PhotoCount),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("error flushing CSV writer: %w", err)
	}

	return buffer, nil
}

func (s *lotService) GetPhotoPath(ctx context.Context, actor model.Actor, lotID, photoID int64) (string, string, error) {
	if _, err := s.findModifiable(ctx, actor, lotID); err != nil {
		return "", "", err
	}

	photos, err := s.repo.ListPhotos(ctx, lotID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list lot photos: %w", err)
	}
	for _, p := range photos {
		if p.ID == photoID {
			return s.blobs.Path(p.StoredFilename), p.StoredFilename, nil
		}
	}
	return "", "", ErrPhotoNotFound
}
