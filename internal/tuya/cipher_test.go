package tuya

import (
	"bytes"
	"errors"
	"testing"
)

const testKey = "0123456789abcdef"

func TestNewCipherKeyLength(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "16 bytes", key: testKey},
		{name: "too short", key: "short", wantErr: true},
		{name: "too long", key: testKey + "x", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Errorf("NewCipher() error = %v, want ErrInvalidKey", err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewCipher() unexpected error: %v", err)
			}
		})
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	for _, plain := range [][]byte{
		{},
		[]byte("x"),
		[]byte("exactly16bytes!!"),
		[]byte(`{"devId":"abc","dps":{"1":true,"2":25}}`),
	} {
		enc := c.Encrypt(plain)
		if len(enc)%16 != 0 || len(enc) == 0 {
			t.Errorf("Encrypt(%q) length = %d, want non-zero multiple of 16", plain, len(enc))
		}

		dec, err := c.Decrypt(enc)
		if err != nil {
			t.Errorf("Decrypt() error: %v", err)
			continue
		}
		if !bytes.Equal(dec, plain) {
			t.Errorf("Decrypt(Encrypt(%q)) = %q", plain, dec)
		}
	}
}

func TestCipherDecryptErrors(t *testing.T) {
	c, _ := NewCipher(testKey)
	other, _ := NewCipher("fedcba9876543210")

	if _, err := c.Decrypt([]byte("not a block")); !errors.Is(err, ErrProtocol) {
		t.Errorf("Decrypt(short) error = %v, want ErrProtocol", err)
	}
	if _, err := c.Decrypt(nil); !errors.Is(err, ErrProtocol) {
		t.Errorf("Decrypt(nil) error = %v, want ErrProtocol", err)
	}

	// Wrong key almost always produces invalid padding.
	enc := other.Encrypt([]byte(`{"dps":{"1":true}}`))
	if dec, err := c.Decrypt(enc); err == nil && bytes.Equal(dec, []byte(`{"dps":{"1":true}}`)) {
		t.Error("Decrypt() with wrong key returned the original plaintext")
	}
}
