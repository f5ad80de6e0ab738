package artifact

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSink uploads artifacts to a Cloud Storage bucket, overwriting older copies.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a storage client; credentials follow the usual
// GOOGLE_SERVICE_ACCOUNT_KEY / GOOGLE_APPLICATION_CREDENTIALS order.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsJSON, credentialsFile string) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs sink: bucket is required")
	}
	var opts []option.ClientOption
	switch {
	case credentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	objectName := path.Join(g.prefix, name)
	writer := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType(name)

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", g.bucket, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close gs://%s/%s: %w", g.bucket, objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName), nil
}

// Close releases the storage client.
func (g *GCSSink) Close() error {
	return g.client.Close()
}
