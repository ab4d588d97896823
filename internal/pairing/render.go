package pairing

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Renderer turns a raw pairing code into what gets stored and shown to the owner.
type Renderer interface {
	Render(code string) (string, error)
}

// QRRenderer renders codes as PNG data URLs.
type QRRenderer struct {
	Size int
}

func (r QRRenderer) Render(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty pairing code")
	}
	size := r.Size
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PlainRenderer stores the code as is.
type PlainRenderer struct{}

func (PlainRenderer) Render(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty pairing code")
	}
	return code, nil
}
