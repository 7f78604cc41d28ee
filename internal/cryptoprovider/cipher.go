package cryptoprovider

import (
	"crypto/cipher"
	"crypto/des"
	"errors"

	"golang.org/x/crypto/blowfish"
)

// SSH-1 cipher type ids, taken from the historical SSH-1 protocol (the
// same ids original_source/ssh1login.c negotiates against).
const (
	CipherNone     = 0
	CipherIDEA     = 1
	CipherDES      = 2
	Cipher3DES     = 3
	CipherBlowfish = 6
)

// BulkCipher is the installed session cipher spec.md §4.6 requires after
// CMSG_SESSION_KEY is flushed. IDEA is intentionally unsupported — SSH-1's
// original IDEA implementation is patent-encumbered and no library in the
// retrieval pack provides it, mirroring the "assumed available" scope note
// for cryptographic primitives.
type BulkCipher struct {
	Encrypt cipher.Stream
	Decrypt cipher.Stream
}

// InstallCipher builds the encrypt/decrypt streams for the negotiated
// cipher type, keyed by the 32-byte session key. 3DES and Blowfish use
// their first 24/16 bytes respectively; DES uses the first 8.
func InstallCipher(cipherType byte, sessionKey [32]byte) (*BulkCipher, error) {
	var block cipher.Block
	var err error
	switch cipherType {
	case Cipher3DES:
		key := make([]byte, 24)
		copy(key, sessionKey[:24])
		block, err = des.NewTripleDESCipher(key)
	case CipherBlowfish:
		block, err = blowfish.NewCipher(sessionKey[:16])
	case CipherDES:
		block, err = des.NewCipher(sessionKey[:8])
	default:
		return nil, errors.New("unsupported or unimplemented SSH-1 cipher type")
	}
	if err != nil {
		return nil, err
	}
	iv := make([]byte, block.BlockSize())
	return &BulkCipher{
		Encrypt: cipher.NewCFBEncrypter(block, iv),
		Decrypt: cipher.NewCFBDecrypter(block, iv),
	}, nil
}

// SupportsCipher reports whether this provider can install the given
// SSH-1 cipher type.
func SupportsCipher(cipherType byte) bool {
	switch cipherType {
	case Cipher3DES, CipherBlowfish, CipherDES:
		return true
	default:
		return false
	}
}
