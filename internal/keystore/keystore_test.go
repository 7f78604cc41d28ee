package keystore

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/wire"
)

func blob(v1 bool, tag byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = tag
	}
	return b
}

func mkKey(version int, blob []byte, comment string) *Key {
	return &Key{Version: version, PublicBlob: blob, Comment: comment}
}

func TestAddFindRemove(t *testing.T) {
	s := New()
	k := mkKey(2, blob(false, 0x01, 8), "k1")
	if !s.Add(k) {
		t.Fatal("expected first add to succeed")
	}
	found := s.Find(2, k.PublicBlob)
	if found != k {
		t.Fatalf("find after add returned %v, want %v", found, k)
	}
	removed := s.Remove(2, k.PublicBlob)
	if removed != k {
		t.Fatalf("remove returned %v, want %v", removed, k)
	}
	if s.Find(2, k.PublicBlob) != nil {
		t.Fatal("find after remove should return nil")
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	s := New()
	b := blob(false, 0x02, 4)
	k1 := mkKey(2, append([]byte{}, b...), "first")
	k2 := mkKey(2, append([]byte{}, b...), "second")
	if !s.Add(k1) {
		t.Fatal("first add should succeed")
	}
	if s.Add(k2) {
		t.Fatal("duplicate add should fail")
	}
	if s.Count(2) != 1 {
		t.Fatalf("count = %d, want 1", s.Count(2))
	}
}

func TestCountPerVersion(t *testing.T) {
	s := New()
	s.Add(mkKey(1, blob(false, 0x10, 4), "a"))
	s.Add(mkKey(1, blob(false, 0x11, 4), "b"))
	s.Add(mkKey(2, blob(false, 0x20, 4), "c"))
	if s.Count(1) != 2 {
		t.Fatalf("count(1) = %d, want 2", s.Count(1))
	}
	if s.Count(2) != 1 {
		t.Fatalf("count(2) = %d, want 1", s.Count(2))
	}
	if s.Count(3) != 0 {
		t.Fatalf("count(3) = %d, want 0", s.Count(3))
	}
}

func TestOrderingVersionThenBlob(t *testing.T) {
	s := New()
	// Insert out of order; Nth must return them sorted.
	s.Add(mkKey(2, []byte{0x03}, "v2-hi"))
	s.Add(mkKey(1, []byte{0x02}, "v1-hi"))
	s.Add(mkKey(1, []byte{0x01}, "v1-lo"))

	if got := s.Nth(1, 0); got == nil || !bytes.Equal(got.PublicBlob, []byte{0x01}) {
		t.Fatalf("Nth(1,0) = %+v, want blob 0x01", got)
	}
	if got := s.Nth(1, 1); got == nil || !bytes.Equal(got.PublicBlob, []byte{0x02}) {
		t.Fatalf("Nth(1,1) = %+v, want blob 0x02", got)
	}
	if got := s.Nth(2, 0); got == nil || !bytes.Equal(got.PublicBlob, []byte{0x03}) {
		t.Fatalf("Nth(2,0) = %+v, want blob 0x03", got)
	}
	if got := s.Nth(1, 2); got != nil {
		t.Fatalf("Nth(1,2) = %+v, want nil", got)
	}
}

func TestRemoveAllZeroizesAndClears(t *testing.T) {
	s := New()
	priv := &cryptoprovider.SSH1PrivateKey{D: big.NewInt(42)}
	s.Add(&Key{Version: 1, PublicBlob: []byte{0x01}, Comment: "a", Secret: SSH1Secret{Priv: priv}})
	s.Add(mkKey(1, []byte{0x02}, "b"))
	s.Add(mkKey(2, []byte{0x03}, "c"))
	s.RemoveAll(1)
	if s.Count(1) != 0 {
		t.Fatalf("count(1) after RemoveAll = %d, want 0", s.Count(1))
	}
	if s.Count(2) != 1 {
		t.Fatalf("count(2) after RemoveAll(1) = %d, want 1 (untouched)", s.Count(2))
	}
	if priv.D.Sign() != 0 {
		t.Fatal("RemoveAll(1) left the private exponent unscrubbed")
	}
}

func TestEnumerateRoundTrip(t *testing.T) {
	s := New()
	s.Add(mkKey(2, []byte{0xAA, 0xBB}, "first"))
	s.Add(mkKey(2, []byte{0x01}, "second"))

	var buf bytes.Buffer
	if err := s.Enumerate(2, &buf); err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	r := wire.NewReader(buf.Bytes())
	count := r.Uint32()
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	type entry struct {
		blob    []byte
		comment string
	}
	var got []entry
	for i := 0; i < int(count); i++ {
		b := r.String()
		c := r.String()
		got = append(got, entry{b, string(c)})
	}
	if r.Err() != nil {
		t.Fatalf("parse error: %v", r.Err())
	}
	want := []entry{
		{[]byte{0x01}, "second"},
		{[]byte{0xAA, 0xBB}, "first"},
	}
	for i := range want {
		if !bytes.Equal(got[i].blob, want[i].blob) || got[i].comment != want[i].comment {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
