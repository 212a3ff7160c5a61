package whatsapp

import (
	"encoding/base64"

	"whatsam/internal/domain/errors"

	qrcode "github.com/skip2/go-qrcode"
)

// EncodeQRToBase64 renders a pairing challenge as a base64 PNG data URI
// for clients that display the QR image directly.
func EncodeQRToBase64(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", errors.ErrInternal.WithCause(err).WithMessage("failed to encode QR code")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
