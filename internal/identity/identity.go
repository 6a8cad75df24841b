package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceIdentity identifies a USB serial adapter by its vendor and product
// ids. It is what the link persists to support silent auto-reconnection.
type DeviceIdentity struct {
	VendorID  uint16
	ProductID uint16
}

// String renders the identity in the conventional "vvvv:pppp" hex form.
func (d DeviceIdentity) String() string {
	return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
}

// IsZero reports whether the identity carries no information.
func (d DeviceIdentity) IsZero() bool {
	return d.VendorID == 0 && d.ProductID == 0
}

// ParseUSBID parses a 16-bit USB id from a hex string such as "1a86" or
// "0x1A86".
func ParseUSBID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("identity: invalid USB id %q: %w", s, err)
	}
	return uint16(v), nil
}
