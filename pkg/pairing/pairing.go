// Package pairing turns out-of-band pairing commands into registry entries.
//
// A pairing request is a small JSON object sent over USB or a configuration
// page:
//
//	{"name": "Clicker", "mac": "aa:bb:cc:dd:12:34", "aes_key": "<64 hex chars>"}
//
// The device ID is derived from the last two octets of the MAC address, so the
// example above pairs device 0x1234. Older tools send the key as "key"; both
// spellings are accepted.
package pairing

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loracue/cuelink/pkg/crypto"
	"github.com/loracue/cuelink/pkg/registry"
	"github.com/tidwall/gjson"
)

// Request is a validated pairing command.
type Request struct {
	DeviceID uint16
	Name     string
	Address  registry.Address
	Secret   []byte
}

// DeviceIDFromAddress returns the device ID a radio with this MAC uses.
func DeviceIDFromAddress(addr registry.Address) uint16 {
	return uint16(addr[4])<<8 | uint16(addr[5])
}

// ParseRequest validates a JSON pairing request.
func ParseRequest(data []byte) (Request, error) {
	var req Request

	if !gjson.ValidBytes(data) {
		return req, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return req, ErrInvalidJSON
	}

	name := doc.Get("name")
	mac := doc.Get("mac")
	key := doc.Get("aes_key")
	if !key.Exists() {
		key = doc.Get("key")
	}
	fields := []struct {
		name  string
		value gjson.Result
	}{{"name", name}, {"mac", mac}, {"aes_key", key}}
	for _, f := range fields {
		if f.value.Type != gjson.String {
			return req, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	req.Name = strings.TrimSpace(name.String())
	if req.Name == "" {
		return req, ErrInvalidName
	}

	addr, err := ParseAddress(mac.String())
	if err != nil {
		return req, err
	}
	req.Address = addr
	req.DeviceID = DeviceIDFromAddress(addr)
	if req.DeviceID == 0 {
		return req, registry.ErrInvalidDeviceID
	}

	secret, err := hex.DecodeString(key.String())
	if err != nil || !crypto.ValidSecretSize(len(secret)) {
		return req, ErrInvalidKey
	}
	req.Secret = secret

	return req, nil
}

// ParseAddress parses "aa:bb:cc:dd:ee:ff". Upper and lower case hex are both
// accepted.
func ParseAddress(s string) (registry.Address, error) {
	var addr registry.Address

	parts := strings.Split(s, ":")
	if len(parts) != registry.AddressSize {
		return addr, ErrInvalidAddress
	}
	for i, p := range parts {
		if len(p) != 2 {
			return addr, ErrInvalidAddress
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return addr, ErrInvalidAddress
		}
		addr[i] = b[0]
	}
	return addr, nil
}

// Apply stores the request in reg. Pairing an already known device replaces
// its name, address and secret and resets its replay state.
func Apply(reg *registry.Registry, req Request) error {
	return reg.Upsert(req.DeviceID, req.Name, req.Address, req.Secret)
}

// Export renders a registry record in the request format, the inverse of
// ParseRequest. The secret is included, so the result must stay on the
// pairing channel.
func Export(rec registry.Record) ([]byte, error) {
	return json.Marshal(struct {
		Name   string `json:"name"`
		MAC    string `json:"mac"`
		AESKey string `json:"aes_key"`
	}{rec.Name, rec.Address.String(), hex.EncodeToString(rec.Secret)})
}
