package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// Storage Operations
// =============================================================================

// Storage returns a storage client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles storage operations.
type StorageClient struct {
	client *Client
}

// UploadToSignedURL PUTs data to a signed upload URL. Relative URLs, as returned by
// createSignedUploadUrl, are resolved against the storage endpoint.
func (s *StorageClient) UploadToSignedURL(ctx context.Context, signedURL string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	target := signedURL
	if strings.HasPrefix(signedURL, "/") {
		target = s.client.baseURL + "/storage/v1" + signedURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	// The signed URL token authorizes the write; set our own bearer so setHeaders leaves it alone.
	req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

	resp, err := s.client.do(req)
	if err != nil {
		return err
	}
	return resp.Err()
}

// PublicURL returns the public URL of an object in bucket.
func (s *StorageClient) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.client.baseURL, bucket, strings.TrimPrefix(path, "/"))
}
