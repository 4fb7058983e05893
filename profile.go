package linkedinmessaging

import (
	"context"
	"fmt"
)

// GetUserProfile fetches the caller's own abbreviated profile. It
// doubles as the lightweight probe behind LoggedIn.
func (c *Client) GetUserProfile(ctx context.Context) (*UserProfileResponse, error) {
	resp, err := c.get(ctx, "/me", nil)
	if err != nil {
		return nil, err
	}
	return decodeResponse[UserProfileResponse](resp)
}

// DownloadProfilePicture fetches a profile picture at its largest
// available rendition.
func (c *Client) DownloadProfilePicture(ctx context.Context, picture Picture) ([]byte, error) {
	vi := picture.VectorImage
	if vi == nil || len(vi.Artifacts) == 0 {
		return nil, fmt.Errorf("picture has no vector image artifacts")
	}
	// Artifacts are ordered smallest to largest.
	last := vi.Artifacts[len(vi.Artifacts)-1]
	return c.DownloadMedia(ctx, vi.RootURL+last.FileIdentifyingURLPathSegment)
}
