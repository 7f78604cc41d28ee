// Package keystore implements the ordered key index named C1 in spec.md
// §2 and specified in full in §4.1: a single process-wide index of loaded
// keys keyed by (ssh_version, public_blob), kept in (version, blob) sort
// order so that Nth and Count are simple ordered-position queries.
//
// original_source/pageant.c keeps this index in a pair of `tree234`
// balanced trees (rsakeys, ssh2keys). Go has no standard ordered-map type,
// and no pack example pulls in a third-party one for this purpose, so this
// keeps a single slice sorted by the same (version, blob) key and uses
// sort.Search for the tree's "first position >= key" query — the
// idiomatic Go analogue of `findrelpos234`.
package keystore

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"golang.org/x/crypto/ssh"
)

// Secret is the sum type named in spec.md §9 "union-tagged key structure":
// a key owns either SSH-1 RSA private parameters or an SSH-2 signer.
type Secret interface {
	release()
}

// SSH1Secret wraps an SSH-1 RSA private key.
type SSH1Secret struct {
	Priv *cryptoprovider.SSH1PrivateKey
}

func (s SSH1Secret) release() { s.Priv.Release() }

// SSH2Secret wraps an SSH-2 algorithm identity (signer + supported flags).
type SSH2Secret struct {
	Identity cryptoprovider.SSH2Identity
}

func (s SSH2Secret) release() {
	// ssh.Signer implementations hold their private key material behind an
	// opaque interface with no exported scrub hook; there is nothing more
	// this layer can zero without reaching into a specific key type.
}

// Key is the entity named in spec.md §3.
type Key struct {
	Version    int // 1 or 2
	PublicBlob []byte
	Comment    string
	Secret     Secret
}

func (k *Key) release() {
	if k.Secret != nil {
		k.Secret.release()
	}
}

// Release scrubs k's secret material. Callers that pulled a key out of the
// store via Remove are responsible for calling this once they are done
// with it (spec.md §4.1).
func (k *Key) Release() { k.release() }

// less implements the total order from spec.md §4.1: version ascending,
// then lexicographic on the raw public blob bytes.
func less(aVersion int, aBlob []byte, bVersion int, bBlob []byte) bool {
	if aVersion != bVersion {
		return aVersion < bVersion
	}
	return bytes.Compare(aBlob, bBlob) < 0
}

// Store is the ordered key index. Not safe for concurrent use without
// external synchronization; agentproto.Handler serializes every request
// that reaches the store.
type Store struct {
	keys []*Key // always kept sorted by (Version, PublicBlob)
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// position returns the first index i such that keys[i] >= (version, blob)
// in sort order — the Go analogue of findrelpos234(..., REL234_GE).
func (s *Store) position(version int, blob []byte) int {
	return sort.Search(len(s.keys), func(i int) bool {
		return !less(s.keys[i].Version, s.keys[i].PublicBlob, version, blob)
	})
}

// Count returns the number of keys of the given version.
func (s *Store) Count(version int) int {
	lo := s.position(version, nil)
	hi := s.position(version+1, nil)
	return hi - lo
}

// Nth returns the i-th key of the given version in sort order, or nil if
// out of range.
func (s *Store) Nth(version int, i int) *Key {
	lo := s.position(version, nil)
	idx := lo + i
	if i < 0 || idx >= len(s.keys) || s.keys[idx].Version != version {
		return nil
	}
	return s.keys[idx]
}

// Add inserts key if (version, public_blob) is not already present, and
// reports whether the insertion happened. On a duplicate, the store does
// not take ownership of key — the caller must release it (spec.md §4.1).
func (s *Store) Add(key *Key) bool {
	pos := s.position(key.Version, key.PublicBlob)
	if pos < len(s.keys) && s.keys[pos].Version == key.Version && bytes.Equal(s.keys[pos].PublicBlob, key.PublicBlob) {
		return false
	}
	s.keys = append(s.keys, nil)
	copy(s.keys[pos+1:], s.keys[pos:])
	s.keys[pos] = key
	return true
}

// Find returns the key with the given identity, or nil.
func (s *Store) Find(version int, blob []byte) *Key {
	pos := s.position(version, blob)
	if pos < len(s.keys) && s.keys[pos].Version == version && bytes.Equal(s.keys[pos].PublicBlob, blob) {
		return s.keys[pos]
	}
	return nil
}

// Remove deletes and returns the key with the given identity, or nil if
// absent. The caller is responsible for releasing the returned key's
// secret (spec.md §4.1); Remove itself does not scrub, so a caller that
// wants to keep using the key's public half after removal still can.
func (s *Store) Remove(version int, blob []byte) *Key {
	pos := s.position(version, blob)
	if pos >= len(s.keys) || s.keys[pos].Version != version || !bytes.Equal(s.keys[pos].PublicBlob, blob) {
		return nil
	}
	k := s.keys[pos]
	s.keys = append(s.keys[:pos], s.keys[pos+1:]...)
	return k
}

// RemoveAll frees every key of the given version, zeroizing secrets.
func (s *Store) RemoveAll(version int) {
	lo := s.position(version, nil)
	hi := s.position(version+1, nil)
	for _, k := range s.keys[lo:hi] {
		k.release()
	}
	s.keys = append(s.keys[:lo], s.keys[hi:]...)
}

// Enumerate writes the classic agent-protocol identity list: a uint32
// count followed by per-key (public_blob, comment) entries. Version 1 uses
// the no-length-prefix public-key layout; version 2 length-prefixes the
// blob as an SSH-2 string. Secret material is never written (spec.md
// §4.1's invariant).
func (s *Store) Enumerate(version int, w io.Writer) error {
	lo := s.position(version, nil)
	hi := s.position(version+1, nil)
	count := uint32(hi - lo)
	if err := binary.Write(w, binary.BigEndian, count); err != nil {
		return err
	}
	for _, k := range s.keys[lo:hi] {
		if version == 1 {
			if _, err := w.Write(k.PublicBlob); err != nil {
				return err
			}
		} else {
			if err := writeSSH2String(w, k.PublicBlob); err != nil {
				return err
			}
		}
		if err := writeSSH2String(w, []byte(k.Comment)); err != nil {
			return err
		}
	}
	return nil
}

func writeSSH2String(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// KeyType reports the SSH-2 algorithm name for an SSH-2 key, used by
// callers that want a human-readable identity label.
func KeyType(k *Key) string {
	if k.Version != 2 {
		return ""
	}
	if s2, ok := k.Secret.(SSH2Secret); ok && s2.Identity.Public != nil {
		return s2.Identity.Public.Type()
	}
	pub, err := ssh.ParsePublicKey(k.PublicBlob)
	if err != nil {
		return ""
	}
	return pub.Type()
}
