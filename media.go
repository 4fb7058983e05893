package linkedinmessaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/wirebird/linkedin-messaging/internal/httpkit"
)

// uploadMetadataRequest asks for an upload slot.
type uploadMetadataRequest struct {
	MediaUploadType string `json:"mediaUploadType"`
	FileSize        int    `json:"fileSize"`
	Filename        string `json:"filename"`
}

// uploadMetadataResponse carries the slot's URN and direct upload URL.
type uploadMetadataResponse struct {
	Value struct {
		URN             URN    `json:"urn"`
		SingleUploadURL string `json:"singleUploadUrl"`
	} `json:"value"`
}

// UploadMedia uploads attachment bytes in two steps: request an upload
// slot from the API, then PUT the raw bytes to the returned URL. A
// failure at either step fails the whole call; there is no retry. The
// returned attachment is ready to include in a MessageCreate.
func (c *Client) UploadMedia(ctx context.Context, data []byte, filename, mediaType string) (*MessageAttachmentCreate, error) {
	metaResp, err := c.postJSON(ctx, "/voyagerMediaUploadMetadata",
		url.Values{"action": {"upload"}},
		uploadMetadataRequest{
			MediaUploadType: "MESSAGING_PHOTO_ATTACHMENT",
			FileSize:        len(data),
			Filename:        filename,
		})
	if err != nil {
		return nil, err
	}
	meta, err := decodeResponse[uploadMetadataResponse](metaResp)
	if err != nil {
		return nil, fmt.Errorf("upload metadata: %w", err)
	}
	if meta.Value.SingleUploadURL == "" {
		return nil, &ProtocolError{
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("upload metadata response has no upload URL"),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		meta.Value.SingleUploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	c.applyHeaders(req)
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	if err := expectStatus(resp, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	return &MessageAttachmentCreate{
		ByteSize:  len(data),
		ID:        meta.Value.URN,
		MediaType: mediaType,
		Name:      filename,
	}, nil
}

// DownloadMedia fetches a media blob by its direct URL (attachment
// references, GIF renditions, profile picture artifacts).
func (c *Client) DownloadMedia(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.applyHeaders(req)
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	return body, nil
}
