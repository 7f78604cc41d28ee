package cryptoprovider

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"

	"github.com/kryptco/sshkeyd/internal/wire"
)

// SSH1PublicKey is the classic SSH-1 RSA public key: exponent-first
// serialization, bit length is informational only (the modulus's own byte
// length is authoritative for framing, per spec.md §3).
type SSH1PublicKey struct {
	Bits int
	E    *big.Int
	N    *big.Int
}

// SSH1PrivateKey adds the private exponent and CRT parameters. Values are
// best-effort scrubbed by Release, matching spec.md §9 "manual
// zeroization" — Go's garbage collector does not guarantee the backing
// memory is ever reused, but overwriting the big.Int's value removes the
// secret from any live reference this process still holds.
type SSH1PrivateKey struct {
	Pub  SSH1PublicKey
	D    *big.Int
	P    *big.Int
	Q    *big.Int
	IQMP *big.Int // q^-1 mod p
}

// Release scrubs the private fields in place.
func (k *SSH1PrivateKey) Release() {
	if k == nil {
		return
	}
	for _, v := range []*big.Int{k.D, k.P, k.Q, k.IQMP} {
		if v != nil {
			v.SetInt64(0)
		}
	}
}

// PublicBlob serializes the public key in the SSH-1 no-length-prefix,
// exponent-first layout used as the agent identity (spec.md §3).
func (p SSH1PublicKey) PublicBlob() []byte {
	w := wire.NewWriter()
	w.Uint32(uint32(p.Bits))
	w.MPInt(p.E)
	w.MPInt(p.N)
	return w.Bytes()
}

// ParseSSH1PublicKeyNoLength parses the no-length-prefix SSH-1 public key
// encoding used in agent requests: uint32 bits, MP-int e, MP-int n.
func ParseSSH1PublicKeyNoLength(r *wire.Reader) SSH1PublicKey {
	bits := r.Uint32()
	e := r.MPInt()
	n := r.MPInt()
	return SSH1PublicKey{Bits: int(bits), E: e, N: n}
}

// RSAVerify checks the internal consistency of an SSH-1 private key before
// it is accepted into the store: p*q must equal n, and d*e must be 1
// modulo both p-1 and q-1, which accepts d computed modulo either
// (p-1)(q-1) or lcm(p-1, q-1). This is the "rsa_verify" precondition
// named in spec.md §4.2's ADD operations row.
func RSAVerify(priv *SSH1PrivateKey) error {
	if priv.Pub.N == nil || priv.Pub.E == nil || priv.D == nil || priv.P == nil || priv.Q == nil {
		return errors.New("incomplete RSA key")
	}
	product := new(big.Int).Mul(priv.P, priv.Q)
	if product.Cmp(priv.Pub.N) != 0 {
		return errors.New("p*q != n")
	}
	ed := new(big.Int).Mul(priv.D, priv.Pub.E)
	for _, prime := range []*big.Int{priv.P, priv.Q} {
		m := new(big.Int).Sub(prime, big.NewInt(1))
		if new(big.Int).Mod(ed, m).Cmp(big.NewInt(1)) != 0 {
			return errors.New("d is not the modular inverse of e")
		}
	}
	return nil
}

// RSADecryptChallenge performs the textbook RSA decryption (c^d mod n)
// the SSH-1 agent challenge (type 3) requires, and returns the result as
// exactly 32 big-endian bytes (zero-padded on the left), matching
// spec.md §4.2's "interpret the 256-bit result in big-endian order".
func RSADecryptChallenge(priv *SSH1PrivateKey, challenge *big.Int) ([]byte, error) {
	if priv.Pub.N == nil || priv.D == nil {
		return nil, errors.New("incomplete RSA key")
	}
	m := new(big.Int).Exp(challenge, priv.D, priv.Pub.N)
	out := make([]byte, 32)
	mb := m.Bytes()
	if len(mb) > 32 {
		return nil, errors.New("decrypted challenge too large")
	}
	copy(out[32-len(mb):], mb)
	return out, nil
}

// RSAEncryptPKCS1 encrypts m under pub using PKCS#1 v1.5 type-2 padding,
// as spec.md §4.6's session-key transmission requires.
func RSAEncryptPKCS1(pub SSH1PublicKey, m []byte) ([]byte, error) {
	rsaPub := &rsa.PublicKey{N: pub.N, E: int(pub.E.Int64())}
	return rsa.EncryptPKCS1v15(rand.Reader, rsaPub, m)
}

// MD5ChallengeResponse computes MD5(response32 || sessionID), the SSH-1
// agent's RSA challenge reply digest (spec.md §4.2, §8 property 5).
func MD5ChallengeResponse(response32, sessionID []byte) [16]byte {
	h := md5.New()
	h.Write(response32)
	h.Write(sessionID)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SessionID computes MD5(hostModulus || serverModulus || cookie), both
// moduli emitted big-endian in their minimal byte length (spec.md §4.6).
func SessionID(hostModulus, serverModulus *big.Int, cookie [8]byte) [16]byte {
	h := md5.New()
	h.Write(hostModulus.Bytes())
	h.Write(serverModulus.Bytes())
	h.Write(cookie[:])
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}
