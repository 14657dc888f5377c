package tuya

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// localKeySize is the AES-128 key length devices are provisioned with.
const localKeySize = 16

// Cipher encrypts and decrypts payloads with the device local key.
//
// Protocol 3.3 uses AES-128 in ECB mode with PKCS#7 padding. ECB is not
// offered by crypto/cipher, so blocks are processed one at a time.
//
// Thread Safety: safe for concurrent use (the block cipher is stateless).
type Cipher struct {
	block cipher.Block
}

// NewCipher creates a Cipher from the 16-character local key.
func NewCipher(localKey string) (*Cipher, error) {
	if len(localKey) != localKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(localKey))
	}
	block, err := aes.NewCipher([]byte(localKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt pads plaintext and encrypts it block by block.
func (c *Cipher) Encrypt(plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

// Decrypt decrypts ciphertext and strips the padding.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			ErrProtocol, len(ciphertext), aes.BlockSize)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		c.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding (wrong local key?)", ErrProtocol)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding (wrong local key?)", ErrProtocol)
		}
	}
	return data[:len(data)-n], nil
}
