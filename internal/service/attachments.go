package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"

	"lot_registry/internal/model"
)

var (
	ErrStorage = errors.New("storage failure")
)

const (
	// MaxPhotosAtCreation caps how many photos a lot may be registered with.
	MaxPhotosAtCreation = 5
	// MaxPhotosPerLot is the lifetime cap, enforced when editing.
	MaxPhotosPerLot = 15
	// MaxPhotoSize limits a single upload to 10MB.
	MaxPhotoSize = 10 * 1024 * 1024
)

var allowedPhotoExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// allowedPhoto reports whether the upload is an acceptable candidate:
// a non-empty filename with an allowed image extension, within the size
// limit. Rejected candidates are skipped, they never consume capacity.
func allowedPhoto(fh *multipart.FileHeader) bool {
	if fh == nil || fh.Filename == "" || fh.Size > MaxPhotoSize {
		return false
	}
	return allowedPhotoExts[strings.ToLower(filepath.Ext(fh.Filename))]
}

// sanitizeStoredName reduces an uploaded filename to a safe base name:
// path components stripped, spaces and path separators replaced.
func sanitizeStoredName(filename string) string {
	name := filepath.Base(filepath.ToSlash(filename))
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return replacer.Replace(name)
}

// storedPhotoName builds the deterministic name of the photo at the given
// per-lot index: "{lotID}_{index}_{sanitizedOriginal}". The index makes the
// name unique within the lot even when two uploads share an original name.
func storedPhotoName(lotID int64, index int, original string) string {
	return fmt.Sprintf("%d_%d_%s", lotID, index, sanitizeStoredName(original))
}

// savePhotos stores up to capacity acceptable candidates for the lot,
// numbering them from startIndex. Each photo is one unit: the blob is
// written first and the metadata row inserted after; a failed write inserts
// no row, and a failed insert removes the written blob. Valid candidates
// beyond capacity are dropped and reported in the summary warning, never as
// an error.
func (s *lotService) savePhotos(ctx context.Context, lotID int64, files []*multipart.FileHeader, startIndex, capacity int) (model.UploadSummary, error) {
	summary := model.UploadSummary{}
	for _, fh := range files {
		if !allowedPhoto(fh) {
			continue
		}
		if summary.Added >= capacity {
			summary.Dropped++
			continue
		}

		name := storedPhotoName(lotID, startIndex+summary.Added, fh.Filename)

		src, err := fh.Open()
		if err != nil {
			return summary, fmt.Errorf("%w: failed to open uploaded file: %v", ErrStorage, err)
		}
		err = s.blobs.Store(name, src)
		src.Close()
		if err != nil {
			return summary, fmt.Errorf("%w: %v", ErrStorage, err)
		}

		photo := &model.Photo{LotID: lotID, StoredFilename: name}
		if err := s.repo.InsertPhoto(ctx, photo); err != nil {
			// Roll back the blob so no orphan file survives the failed row.
			if delErr := s.blobs.Delete(name); delErr != nil {
				log.Printf("WARN: failed to remove blob %s after metadata failure: %v", name, delErr)
			}
			return summary, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		summary.Added++
	}

	if summary.Dropped > 0 {
		summary.Warning = fmt.Sprintf("photo limit reached: %d photo(s) saved, %d dropped", summary.Added, summary.Dropped)
	}
	return summary, nil
}
