package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const (
	snapshotRoot       = "snapshots/"
	snapshotTimeLayout = "20060102T150405.000000000Z"
	contentTypeJSON    = "application/json"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "snapshot not found")
	ErrUploadFailed   = errors.New(errors.ErrCodeStorage, "snapshot upload failed")
	ErrDownloadFailed = errors.New(errors.ErrCodeStorage, "snapshot download failed")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid snapshot request")
)

// SnapshotInfo describes one archived report.
type SnapshotInfo struct {
	Key          string    `json:"key"`
	TenantID     string    `json:"tenant_id"`
	EntityID     string    `json:"entity_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// SnapshotArchive stores EntityReport JSON documents under
// snapshots/<tenant>/<entity>/<generated-at>.json. Keys sort in time order.
type SnapshotArchive struct {
	client *MinIOClient
	logger logging.Logger
}

func NewSnapshotArchive(client *MinIOClient, log logging.Logger) *SnapshotArchive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &SnapshotArchive{client: client, logger: log}
}

func entityPrefix(tenantID, entityID string) string {
	return snapshotRoot + tenantID + "/" + entityID + "/"
}

// SnapshotKey returns the object key of a report generated at generatedAt.
func SnapshotKey(tenantID, entityID string, generatedAt time.Time) string {
	return entityPrefix(tenantID, entityID) + generatedAt.UTC().Format(snapshotTimeLayout) + ".json"
}

func parseSnapshotKey(key string) (tenantID, entityID string, generatedAt time.Time, ok bool) {
	rest := strings.TrimPrefix(key, snapshotRoot)
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ".json") {
		return "", "", time.Time{}, false
	}
	ts, err := time.Parse(snapshotTimeLayout, strings.TrimSuffix(parts[2], ".json"))
	if err != nil {
		return "", "", time.Time{}, false
	}
	return parts[0], parts[1], ts, true
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
			return false
		}
	}
	return true
}

// ArchiveReport uploads report and returns its description. Re-archiving a
// report with the same GeneratedAt overwrites the previous object.
func (a *SnapshotArchive) ArchiveReport(ctx context.Context, tenantID string, report compliance.EntityReport) (*SnapshotInfo, error) {
	if !validIDs(tenantID, report.EntityID) || report.GeneratedAt.IsZero() {
		return nil, ErrInvalidRequest.WithDetail("tenant, entity and generated_at are required")
	}
	api, err := a.client.API()
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report")
	}

	key := SnapshotKey(tenantID, report.EntityID, report.GeneratedAt)
	opts := minio.PutObjectOptions{
		ContentType: contentTypeJSON,
		UserMetadata: map[string]string{
			"tenant-id":         tenantID,
			"entity-id":         report.EntityID,
			"overall-score-pct": strconv.Itoa(report.Scorecard.OverallScorePct),
		},
	}
	info, err := api.PutObject(ctx, a.client.Bucket(), key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return nil, ErrUploadFailed.WithCause(err).WithDetail(key)
	}

	a.logger.Debug("Snapshot archived",
		logging.TenantID(tenantID),
		logging.EntityID(report.EntityID),
		logging.String("key", key),
		logging.Int64("size", info.Size))

	return &SnapshotInfo{
		Key:          key,
		TenantID:     tenantID,
		EntityID:     report.EntityID,
		GeneratedAt:  report.GeneratedAt.UTC(),
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// ListSnapshots returns the entity's snapshots, newest first. limit <= 0
// returns all of them.
func (a *SnapshotArchive) ListSnapshots(ctx context.Context, tenantID, entityID string, limit int) ([]SnapshotInfo, error) {
	if !validIDs(tenantID, entityID) {
		return nil, ErrInvalidRequest.WithDetail("tenant and entity are required")
	}
	api, err := a.client.API()
	if err != nil {
		return nil, err
	}

	ch := api.ListObjects(ctx, a.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    entityPrefix(tenantID, entityID),
		Recursive: true,
	})
	out := make([]SnapshotInfo, 0)
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorage, "failed to list snapshots")
		}
		tenant, entity, at, ok := parseSnapshotKey(obj.Key)
		if !ok {
			continue
		}
		out = append(out, SnapshotInfo{
			Key:          obj.Key,
			TenantID:     tenant,
			EntityID:     entity,
			GeneratedAt:  at,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LoadReport downloads and decodes the snapshot stored under key.
func (a *SnapshotArchive) LoadReport(ctx context.Context, key string) (*compliance.EntityReport, error) {
	if _, _, _, ok := parseSnapshotKey(path.Clean(key)); !ok {
		return nil, ErrInvalidRequest.WithDetail(key)
	}
	api, err := a.client.API()
	if err != nil {
		return nil, err
	}

	obj, err := api.GetObject(ctx, a.client.Bucket(), key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapReadError(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapReadError(err, key)
	}

	var report compliance.EntityReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode snapshot "+key)
	}
	return &report, nil
}

// LatestReport returns the newest archived report of the entity.
func (a *SnapshotArchive) LatestReport(ctx context.Context, tenantID, entityID string) (*compliance.EntityReport, error) {
	snaps, err := a.ListSnapshots(ctx, tenantID, entityID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrObjectNotFound.WithDetail(entityPrefix(tenantID, entityID))
	}
	return a.LoadReport(ctx, snaps[0].Key)
}

// minio.Object surfaces NoSuchKey on first read, not on GetObject.
func mapReadError(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound.WithDetail(key)
	}
	return ErrDownloadFailed.WithCause(err).WithDetail(key)
}
