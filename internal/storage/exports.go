package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	exportRoot        = "exports"
	exportExt         = ".json"
	exportContentType = "application/json"

	metaOwner  = "owner-id"
	metaSHA256 = "sha256"
	metaCount  = "task-count"
)

var (
	// ErrInvalidExportID is returned for ids that cannot name a snapshot.
	ErrInvalidExportID = errors.New("invalid export id")

	// ErrChecksumMismatch is returned when a snapshot no longer matches the
	// digest recorded at upload time.
	ErrChecksumMismatch = errors.New("export checksum mismatch")
)

// Export describes one stored JSON snapshot of an owner's tasks.
type Export struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	SHA256    string    `json:"sha256,omitempty"`
	Count     int       `json:"count"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskExports lays task snapshots out as exports/<owner>/<unix-nanos>.json
// and records their digest and task count as object metadata.
type TaskExports struct {
	objects ObjectStorage
}

func NewTaskExports(objects ObjectStorage) *TaskExports {
	return &TaskExports{objects: objects}
}

// Save uploads data as a new snapshot taken at the given time.
func (e *TaskExports) Save(ctx context.Context, ownerID uuid.UUID, at time.Time, data []byte, count int) (Export, error) {
	id := strconv.FormatInt(at.UnixNano(), 10)
	key := exportKey(ownerID, id)
	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])

	err := e.objects.Put(ctx, Object{
		Key:         key,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: exportContentType,
		Metadata: map[string]string{
			metaOwner:  ownerID.String(),
			metaSHA256: digest,
			metaCount:  strconv.Itoa(count),
		},
	})
	if err != nil {
		return Export{}, err
	}

	return Export{
		ID:        id,
		Key:       key,
		SHA256:    digest,
		Count:     count,
		Size:      int64(len(data)),
		CreatedAt: at.UTC(),
	}, nil
}

// List returns the owner's snapshots, newest first.
func (e *TaskExports) List(ctx context.Context, ownerID uuid.UUID) ([]Export, error) {
	objects, err := e.objects.List(ctx, ownerPrefix(ownerID))
	if err != nil {
		return nil, err
	}

	exports := make([]Export, 0, len(objects))
	for _, obj := range objects {
		export, ok := exportFromObject(obj)
		if !ok {
			continue
		}
		exports = append(exports, export)
	}
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].CreatedAt.After(exports[j].CreatedAt)
	})
	return exports, nil
}

// Read downloads one snapshot and verifies it against its recorded digest.
func (e *TaskExports) Read(ctx context.Context, ownerID uuid.UUID, id string) ([]byte, Export, error) {
	if !validExportID(id) {
		return nil, Export{}, ErrInvalidExportID
	}

	body, info, err := e.objects.Get(ctx, exportKey(ownerID, id))
	if err != nil {
		return nil, Export{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, Export{}, err
	}

	export, ok := exportFromObject(info)
	if !ok {
		return nil, Export{}, ErrInvalidExportID
	}
	if export.SHA256 != "" {
		hash := sha256.Sum256(data)
		if hex.EncodeToString(hash[:]) != export.SHA256 {
			return nil, Export{}, fmt.Errorf("%w: %s", ErrChecksumMismatch, export.Key)
		}
	}
	export.Size = int64(len(data))
	return data, export, nil
}

// Delete removes one snapshot. Missing snapshots report ErrNotFound.
func (e *TaskExports) Delete(ctx context.Context, ownerID uuid.UUID, id string) error {
	if !validExportID(id) {
		return ErrInvalidExportID
	}

	key := exportKey(ownerID, id)
	if _, err := e.objects.Stat(ctx, key); err != nil {
		return err
	}
	return e.objects.Delete(ctx, key)
}

func (e *TaskExports) Bucket() string {
	return e.objects.Bucket()
}

func ownerPrefix(ownerID uuid.UUID) string {
	return exportRoot + "/" + ownerID.String() + "/"
}

func exportKey(ownerID uuid.UUID, id string) string {
	return ownerPrefix(ownerID) + id + exportExt
}

func validExportID(id string) bool {
	if id == "" || len(id) > 19 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func exportFromObject(obj ObjectInfo) (Export, bool) {
	name := path.Base(obj.Key)
	if !strings.HasSuffix(name, exportExt) {
		return Export{}, false
	}
	id := strings.TrimSuffix(name, exportExt)
	if !validExportID(id) {
		return Export{}, false
	}
	nanos, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Export{}, false
	}

	export := Export{
		ID:        id,
		Key:       obj.Key,
		SHA256:    obj.Metadata[metaSHA256],
		Size:      obj.Size,
		CreatedAt: time.Unix(0, nanos).UTC(),
	}
	if count, err := strconv.Atoi(obj.Metadata[metaCount]); err == nil {
		export.Count = count
	}
	return export, true
}
