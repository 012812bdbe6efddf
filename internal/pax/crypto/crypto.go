// Package crypto implements the Pax packet cipher: AES-128-OFB with a random
// 16-byte IV appended after the ciphertext, keyed by a device key derived
// from the unit's serial number. This matches the firmware's scheme exactly;
// there is no key agreement on the wire.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// SerialLength is the length of a Pax serial number as printed on the device
// and exposed via the Device Information service.
const SerialLength = 8

// DeriveDeviceKey derives the 16-byte packet key from the device serial
// number: the 8-character serial is repeated to fill an AES block, then
// AES-ECB-encrypted using itself as the key.
func DeriveDeviceKey(serial string) ([]byte, error) {
	if len(serial) != SerialLength {
		return nil, fmt.Errorf("crypto: serial must be %d characters, got %d", SerialLength, len(serial))
	}
	doubled := make([]byte, aes.BlockSize)
	copy(doubled, serial)
	copy(doubled[SerialLength:], serial)

	block, err := aes.NewCipher(doubled)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	key := make([]byte, aes.BlockSize)
	block.Encrypt(key, doubled)
	return key, nil
}

// EncryptPacket pads plaintext to a block multiple with zeros, encrypts it
// with AES-OFB under a fresh random IV, and appends the IV after the
// ciphertext as the device expects.
func EncryptPacket(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}

	padded := pad(plaintext)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("crypto: random IV: %w", err)
	}

	out := make([]byte, len(padded)+aes.BlockSize)
	cipher.NewOFB(block, iv).XORKeyStream(out, padded)
	copy(out[len(padded):], iv)
	return out, nil
}

// DecryptPacket splits the trailing IV off an encrypted packet and decrypts
// the remainder. The result keeps the zero padding; the frame decoder reads
// fixed layouts from the front and ignores trailing bytes.
func DecryptPacket(key, packet []byte) ([]byte, error) {
	if len(packet) < 2*aes.BlockSize {
		return nil, fmt.Errorf("crypto: packet too short: %d bytes", len(packet))
	}
	body := packet[:len(packet)-aes.BlockSize]
	iv := packet[len(packet)-aes.BlockSize:]
	if len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d not a block multiple", len(body))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}

	plain := make([]byte, len(body))
	cipher.NewOFB(block, iv).XORKeyStream(plain, body)
	return plain, nil
}

// pad zero-fills data up to the next AES block boundary.
func pad(data []byte) []byte {
	rem := len(data) % aes.BlockSize
	if rem == 0 && len(data) > 0 {
		return data
	}
	padded := make([]byte, len(data)+aes.BlockSize-rem)
	copy(padded, data)
	return padded
}
