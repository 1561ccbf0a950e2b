package wechat

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// TerminalQR renders the login URL as a QR code suitable for printing
// to a terminal, so the operator can scan it from the service logs.
func TerminalQR(url string) (string, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("build login qr: %w", err)
	}
	return q.ToSmallString(false), nil
}

// SaveQR writes the login QR code as a PNG, for setups where the
// terminal cannot display one.
func SaveQR(url, path string) error {
	if err := qrcode.WriteFile(url, qrcode.Medium, 256, path); err != nil {
		return fmt.Errorf("write login qr: %w", err)
	}
	return nil
}
