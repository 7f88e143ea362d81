package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/eddykim0118/kivo/internal/config"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// BucketService stores raw uploads in a single bucket.
type BucketService interface {
	UploadFile(dbc dbctx.Context, key string, file io.Reader, contentType string) error
	// DeleteFile removes key; a missing object is ErrObjectNotFound.
	DeleteFile(dbc dbctx.Context, key string) error
	// ObjectURI is the gs:// address handed to the forecasting service.
	ObjectURI(key string) string
	Ping(ctx context.Context) error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	emulatorHost  string
	bucket        string
	httpClient    *http.Client
}

func NewBucketService(log *logger.Logger, cfg config.StorageConfig) (BucketService, error) {
	storageCfg, err := ResolveObjectStorageConfig(cfg.Mode, cfg.EmulatorHost)
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(cfg.Bucket)
	if bucketName == "" {
		return nil, fmt.Errorf("missing UPLOAD_GCS_BUCKET_NAME")
	}
	stClient, err := newStorageClientForMode(context.Background(), storageCfg, cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", bucketName,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   storageCfg.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"),
		bucket:        bucketName,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig, creds string) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(creds)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		// The storage client only honours the emulator through the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func (bs *bucketService) UploadFile(dbc dbctx.Context, key string, file io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if ct := strings.TrimSpace(contentType); ct != "" {
		w.ContentType = ct
	} else if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".csv"):
		return "text/csv"
	case strings.HasSuffix(s, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(s, ".xls"):
		return "application/vnd.ms-excel"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}

func (bs *bucketService) DeleteFile(dbc dbctx.Context, key string) error {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 30*time.Second)
	defer cancel()
	if err := bs.storageClient.Bucket(bs.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucket, err)
	}
	return nil
}

func (bs *bucketService) ObjectURI(key string) string {
	return fmt.Sprintf("gs://%s/%s", bs.bucket, strings.TrimLeft(strings.TrimSpace(key), "/"))
}

func (bs *bucketService) isEmulatorMode() bool {
	return bs != nil && bs.storageMode == ObjectStorageModeGCSEmulator && strings.TrimSpace(bs.emulatorHost) != ""
}

func (bs *bucketService) emulatorBucketURL() string {
	return fmt.Sprintf("%s/storage/v1/b/%s", strings.TrimRight(bs.emulatorHost, "/"), url.PathEscape(bs.bucket))
}

func (bs *bucketService) client() *http.Client {
	if bs.httpClient != nil {
		return bs.httpClient
	}
	return http.DefaultClient
}

// Ping checks that the bucket is reachable with the configured credentials.
func (bs *bucketService) Ping(ctx context.Context) error {
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if bs.isEmulatorMode() {
		var payload map[string]any
		return bs.emulatorGetJSON(ctx2, bs.emulatorBucketURL(), &payload)
	}
	if _, err := bs.storageClient.Bucket(bs.bucket).Attrs(ctx2); err != nil {
		return fmt.Errorf("bucket %q: %w", bs.bucket, err)
	}
	return nil
}

func (bs *bucketService) emulatorGetJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed creating emulator request: %w", err)
	}
	resp, err := bs.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed emulator request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrObjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("emulator request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode emulator response: %w", err)
	}
	return nil
}
