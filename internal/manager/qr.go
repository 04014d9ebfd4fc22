package manager

import (
	qrcode "github.com/skip2/go-qrcode"

	"venmux/internal/types"
)

const qrImageSize = 256

// PairingImage renders the vendor's current pairing payload as a PNG. Only a
// pending vendor with an issued code has one; everything else is not found,
// including a connected vendor whose code was already cleared.
func (m *Manager) PairingImage(vendorID string) ([]byte, error) {
	m.mu.Lock()
	code := ""
	if v := m.reg.Get(vendorID); v != nil {
		code = v.QR
	}
	m.mu.Unlock()

	if code == "" {
		return nil, types.Err(types.ErrNotFound, nil, "no pairing code for vendor %s", vendorID)
	}
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, err
	}
	return png, nil
}
