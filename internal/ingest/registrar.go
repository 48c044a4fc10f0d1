// Package ingest registers original images stored in the bucket as photos.
package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
	"github.com/kozaktomas/photo-indexer/internal/objectstore"
)

// photoNamespace scopes the deterministic photo ids.
var photoNamespace = uuid.MustParse("6f0d9b52-3c1e-4a57-9e8e-2d7c1f4b8a90")

// PhotoStore is the subset of database.PhotoWriter registration needs.
type PhotoStore interface {
	ExistingFileNames(ctx context.Context, collectionID string) (map[string]bool, error)
	Insert(ctx context.Context, photo *database.Photo) (bool, error)
}

// ObjectStore is the subset of objectstore.MinIOStore registration needs.
type ObjectStore interface {
	Bucket() string
	ListObjects(ctx context.Context, prefix string) ([]objectstore.Object, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// ImportResult summarizes one import of a collection prefix.
type ImportResult struct {
	Listed     int `json:"listed"`
	Registered int `json:"registered"`
	Existing   int `json:"existing"`
	Ignored    int `json:"ignored"`
	Failed     int `json:"failed"`
}

type Registrar struct {
	photos        PhotoStore
	objects       ObjectStore
	publicBaseURL string
	concurrency   int
	logger        *zap.Logger
	now           func() time.Time
}

func NewRegistrar(photos PhotoStore, objects ObjectStore, publicBaseURL string, concurrency int, logger *zap.Logger) *Registrar {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{
		photos:        photos,
		objects:       objects,
		publicBaseURL: publicBaseURL,
		concurrency:   concurrency,
		logger:        logger,
		now:           time.Now,
	}
}

// ValidateCollectionID rejects ids that cannot be used as a bucket prefix.
func ValidateCollectionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errkind.Wrap(errkind.ErrValidation, "collection id is required", nil)
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return errkind.Wrap(errkind.ErrValidation, "invalid collection id "+id, nil)
	}
	return nil
}

// PhotoID returns the stable id of a file within a collection.
func PhotoID(collectionID, fileName string) string {
	return uuid.NewSHA1(photoNamespace, []byte(collectionID+"/"+fileName)).String()
}

// Import registers every image under "<collectionID>/" that is not registered
// yet. Objects that fail to download are counted and left for the next import.
func (r *Registrar) Import(ctx context.Context, collectionID string, progress func(done, total int)) (*ImportResult, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return nil, err
	}
	logger := r.logger.With(zap.String("collection_id", collectionID))

	prefix := collectionID + "/"
	objects, err := r.objects.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	existing, err := r.photos.ExistingFileNames(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("existing photos: %w", err)
	}

	result := &ImportResult{Listed: len(objects)}
	var todo []objectstore.Object
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		switch {
		case !IsImageFile(name):
			result.Ignored++
		case existing[name]:
			result.Existing++
		default:
			todo = append(todo, obj)
		}
	}
	logger.Info("importing photos", zap.Int("listed", len(objects)), zap.Int("new", len(todo)))

	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, obj := range todo {
		g.Go(func() error {
			_, inserted, err := r.registerKey(gctx, collectionID, obj.Key)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				logger.Warn("failed to register photo", zap.String("key", obj.Key), zap.Error(err))
			case inserted:
				result.Registered++
			default:
				result.Existing++
			}
			done++
			if progress != nil {
				progress(done, len(todo))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	logger.Info("import finished",
		zap.Int("registered", result.Registered),
		zap.Int("existing", result.Existing),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Upload stores an image under "<collectionID>/<fileName>" and registers it.
// It reports false when the file name was already registered; the object is
// overwritten but the stored photo keeps its derived fields.
func (r *Registrar) Upload(ctx context.Context, collectionID, fileName string, data []byte) (*database.Photo, bool, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return nil, false, err
	}
	fileName = path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if fileName == "." || fileName == "/" || !IsImageFile(fileName) {
		return nil, false, errkind.Wrap(errkind.ErrValidation, "not an image file name: "+fileName, nil)
	}
	mime := mimetype.Detect(data)
	if len(data) == 0 || !strings.HasPrefix(mime.String(), "image/") {
		return nil, false, errkind.Wrap(errkind.ErrValidation, "content is not an image: "+mime.String(), nil)
	}

	existing, err := r.photos.ExistingFileNames(ctx, collectionID)
	if err != nil {
		return nil, false, fmt.Errorf("list registered files: %w", err)
	}
	if existing[fileName] {
		return nil, false, errkind.Wrap(errkind.ErrConflict, "file already registered: "+collectionID+"/"+fileName, nil)
	}

	key := collectionID + "/" + fileName
	if err := r.objects.PutObject(ctx, key, data, mime.String()); err != nil {
		return nil, false, fmt.Errorf("upload %s: %w", key, err)
	}
	return r.Register(ctx, collectionID, key, data)
}

func (r *Registrar) registerKey(ctx context.Context, collectionID, key string) (*database.Photo, bool, error) {
	data, err := r.objects.GetObject(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return r.Register(ctx, collectionID, key, data)
}

// Register inserts the photo stored under key. It reports false when the
// file name is already registered in the collection.
func (r *Registrar) Register(ctx context.Context, collectionID, key string, data []byte) (*database.Photo, bool, error) {
	location := objectstore.LocationForKey(r.publicBaseURL, r.objects.Bucket(), key)
	photo := BuildPhoto(collectionID, strings.TrimPrefix(key, collectionID+"/"), location, data, r.now())

	inserted, err := r.photos.Insert(ctx, photo)
	if err != nil {
		return nil, false, fmt.Errorf("insert %s: %w", key, err)
	}
	if inserted {
		r.logger.Debug("photo registered",
			zap.String("photo_id", photo.ID),
			zap.String("key", key),
			zap.Bool("gps", photo.HasCoordinates()),
		)
	}
	return photo, inserted, nil
}

// BuildPhoto assembles a new photo record with no derived fields set.
func BuildPhoto(collectionID, fileName, location string, data []byte, now time.Time) *database.Photo {
	md := ExtractMetadata(data)
	return &database.Photo{
		ID:             PhotoID(collectionID, fileName),
		CollectionID:   collectionID,
		FileName:       fileName,
		SourceLocation: location,
		Latitude:       md.Latitude,
		Longitude:      md.Longitude,
		TakenAt:        md.TakenAt,
		Size:           int64(len(data)),
		MimeType:       mimetype.Detect(data).String(),
		CreatedAt:      now.UTC(),
	}
}
