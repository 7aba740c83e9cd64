package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/JaimeStill/matchflow/pkg/lifecycle"
)

// azure stores stage outputs as block blobs in a single container.
type azure struct {
	container *container.Client
	name      string
	logger    *slog.Logger
}

// newAzure authenticates with the connection string when one is set and
// otherwise with the default Azure credential chain against AccountURL.
func newAzure(cfg *Config, logger *slog.Logger) (System, error) {
	var (
		client *container.Client
		err    error
	)

	if cfg.ConnectionString != "" {
		client, err = container.NewClientFromConnectionString(cfg.ConnectionString, cfg.ContainerName, nil)
	} else {
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, fmt.Errorf("azure credential: %w", cerr)
		}
		containerURL := strings.TrimSuffix(cfg.AccountURL, "/") + "/" + cfg.ContainerName
		client, err = container.NewClient(containerURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create azure container client: %w", err)
	}

	return &azure{
		container: client,
		name:      cfg.ContainerName,
		logger:    logger.With("container", cfg.ContainerName),
	}, nil
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() {
		_, err := a.container.Create(lc.Context(), nil)
		switch {
		case err == nil:
			a.logger.Info("container created")
		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
			a.logger.Info("container ready")
		case bloberror.HasCode(err, bloberror.AuthorizationPermissionMismatch):
			a.logger.Warn("no permission to create container, assuming it exists")
		default:
			a.logger.Error("container initialization failed", "error", err)
		}
	})
	return nil
}

func (a *azure) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := a.container.NewBlockBlobClient(key).UploadStream(ctx, reader, &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return a.mapErr("upload", key, err)
}

func (a *azure) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.container.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		return nil, a.mapErr("download", key, err)
	}
	return resp.Body, nil
}

func (a *azure) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := a.container.NewBlobClient(key).Delete(ctx, nil)
	return a.mapErr("delete", key, err)
}

func (a *azure) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := a.container.NewBlobClient(key).GetProperties(ctx, nil)
	switch err = a.mapErr("check", key, err); err {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

// mapErr converts a missing blob to ErrNotFound and wraps anything else
// with the operation and key.
func (a *azure) mapErr(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%s blob %s/%s: %w", op, a.name, key, err)
	}
}
