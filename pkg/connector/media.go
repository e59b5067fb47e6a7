// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// remoteImage is an image fetched for an image reply.
type remoteImage struct {
	Data        []byte
	ContentType string
	FileName    string
}

// fetchImage downloads the image at rawURL. Bodies larger than maxSize are
// rejected rather than truncated.
func fetchImage(ctx context.Context, hc *http.Client, rawURL string, maxSize int64) (*remoteImage, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: unexpected status %s", resp.Status)
	}
	if resp.ContentLength > maxSize {
		return nil, fmt.Errorf("image too large: %d bytes", resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("image larger than %d bytes", maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	} else {
		contentType = http.DetectContentType(data)
	}
	return &remoteImage{
		Data:        data,
		ContentType: contentType,
		FileName:    imageFileName(u, contentType),
	}, nil
}

// imageFileName derives an upload name from the URL path, falling back to
// "image" plus an extension for the content type.
func imageFileName(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name != "." && name != "/" && name != "" {
		return name
	}
	name = "image"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		name += exts[0]
	} else if sub, ok := strings.CutPrefix(contentType, "image/"); ok {
		name += "." + sub
	}
	return name
}
