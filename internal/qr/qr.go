// Package qr renders QR code images for document resolution URLs.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ImageSize is the rendered edge length in pixels.
const ImageSize = 512

// Render encodes url into a PNG QR image.
func Render(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("qr: url is required")
	}
	png, err := qrcode.Encode(url, qrcode.Medium, ImageSize)
	if err != nil {
		return nil, fmt.Errorf("qr: encode %q: %w", url, err)
	}
	return png, nil
}
