package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/sirupsen/logrus"
)

const (
	uploadTimeout   = 2 * time.Minute
	uploadBlockSize = 1 << 20
)

// blobAPI is the part of the azblob client the archive uses
type blobAPI interface {
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureStorage archives snapshots in Azure Blob Storage
type AzureStorage struct {
	client        blobAPI
	containerName string
}

// Ensure AzureStorage implements StorageInterface
var _ StorageInterface = (*AzureStorage)(nil)

// NewAzureStorage connects to accountName with the default Azure credential
// chain and makes sure containerName exists.
func NewAzureStorage(ctx context.Context, accountName, containerName string) (*AzureStorage, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return newAzureStorage(ctx, client, containerName)
}

func newAzureStorage(ctx context.Context, client blobAPI, containerName string) (*AzureStorage, error) {
	s := &AzureStorage{client: client, containerName: containerName}
	if err := s.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AzureStorage) ensureContainer(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	switch {
	case err == nil:
		logrus.Infof("Created snapshot container %s", s.containerName)
	case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
		logrus.Debugf("Snapshot container %s already exists", s.containerName)
	default:
		return fmt.Errorf("failed to create container %s: %w", s.containerName, err)
	}
	return nil
}

// Store uploads obj as a block blob, carrying its content type and metadata
func (s *AzureStorage) Store(ctx context.Context, obj Object) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	opts := &azblob.UploadBufferOptions{
		BlockSize:   uploadBlockSize,
		Concurrency: 3,
		Metadata:    blobMetadata(obj.Metadata),
	}
	if obj.ContentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(obj.ContentType)}
	}

	if _, err := s.client.UploadBuffer(ctx, s.containerName, obj.Name, obj.Data, opts); err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", obj.Name, err)
	}

	logrus.WithFields(logrus.Fields{
		"blob":  obj.Name,
		"bytes": len(obj.Data),
	}).Info("Archived snapshot to Azure Blob Storage")
	return nil
}

// blobMetadata converts to the SDK's pointer map. Empty values are skipped
// because the service rejects them.
func blobMetadata(in map[string]string) map[string]*string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		if v == "" {
			continue
		}
		out[k] = to.Ptr(v)
	}
	return out
}
