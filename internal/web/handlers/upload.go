package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/database"
)

// Uploader stores and registers one image.
type Uploader interface {
	Upload(ctx context.Context, collectionID, fileName string, data []byte) (*database.Photo, bool, error)
}

// UploadHandler handles file upload endpoints.
type UploadHandler struct {
	uploader Uploader
	logger   *zap.Logger
}

func NewUploadHandler(uploader Uploader, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, logger: logger}
}

// UploadedPhoto is one entry of the upload response.
type UploadedPhoto struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	Location   string `json:"location"`
	Registered bool   `json:"registered"`
}

// Upload handles POST /api/v1/collections/{collectionId}/photos with one or
// more multipart "file" parts. It answers 201 when at least one new photo
// was registered and 409 when a file name is already registered in the
// collection; files earlier in the same request stay stored.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	status := http.StatusOK
	out := make([]UploadedPhoto, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read file: "+fh.Filename)
			return
		}

		photo, inserted, err := h.uploader.Upload(r.Context(), collectionID, fh.Filename, data)
		if err != nil {
			respondErr(w, h.logger, "upload failed", err)
			return
		}
		if inserted {
			status = http.StatusCreated
		}
		out = append(out, UploadedPhoto{
			ID:         photo.ID,
			FileName:   photo.FileName,
			Location:   photo.SourceLocation,
			Registered: inserted,
		})
	}

	h.logger.Info("photos uploaded",
		zap.String("collection_id", sanitizeForLog(collectionID)),
		zap.Int("files", len(out)),
	)
	respondJSON(w, status, out)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
