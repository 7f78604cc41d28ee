package keyloader

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/kryptco/sshkeyd/internal/agentproto"
	"github.com/kryptco/sshkeyd/internal/keystore"
	"github.com/kryptco/sshkeyd/internal/passphrase"
)

func genKeyPEM(t *testing.T, comment, pass string) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var block *pem.Block
	if pass == "" {
		block, err = ssh.MarshalPrivateKey(priv, comment)
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, comment, []byte(pass))
	}
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(block)
}

func newLoader() (*Loader, *agentproto.Handler) {
	h := &agentproto.Handler{Store: keystore.New()}
	agent := &InProcessAgent{Handler: h}
	return New(agent, passphrase.New(8)), h
}

func TestLoadUnencryptedKeySucceeds(t *testing.T) {
	loader, h := newLoader()
	pemBytes := genKeyPEM(t, "alice@host", "")

	outcome := loader.Load(pemBytes, "", nil)
	if outcome.Result != ResultOK {
		t.Fatalf("outcome = %+v, want OK", outcome)
	}
	if h.Store.Count(2) != 1 {
		t.Fatalf("store count = %d, want 1", h.Store.Count(2))
	}
}

func TestLoadDedupSkipsSecondLoad(t *testing.T) {
	loader, h := newLoader()
	pemBytes := genKeyPEM(t, "alice@host", "")

	if outcome := loader.Load(pemBytes, "", nil); outcome.Result != ResultOK {
		t.Fatalf("first load = %+v, want OK", outcome)
	}
	if outcome := loader.Load(pemBytes, "", nil); outcome.Result != ResultOK {
		t.Fatalf("second load = %+v, want OK (dedup)", outcome)
	}
	if h.Store.Count(2) != 1 {
		t.Fatalf("store count = %d, want 1 after dedup", h.Store.Count(2))
	}
}

func TestLoadEncryptedKeyNeedsPassphraseThenSucceeds(t *testing.T) {
	loader, h := newLoader()
	pemBytes := genKeyPEM(t, "bob@host", "correct horse")

	if outcome := loader.Load(pemBytes, "", nil); outcome.Result != ResultNeedPassphrase {
		t.Fatalf("outcome without passphrase = %+v, want NEED_PP", outcome)
	}
	if outcome := loader.Load(pemBytes, "wrong", nil); outcome.Result != ResultNeedPassphrase {
		t.Fatalf("outcome with wrong passphrase = %+v, want NEED_PP", outcome)
	}
	if outcome := loader.Load(pemBytes, "correct horse", nil); outcome.Result != ResultOK {
		t.Fatalf("outcome with correct passphrase = %+v, want OK", outcome)
	}
	if h.Store.Count(2) != 1 {
		t.Fatalf("store count = %d, want 1", h.Store.Count(2))
	}
	if got := loader.Passphrase.Len(); got != 1 {
		t.Fatalf("passphrase cache len = %d, want 1", got)
	}
}

func TestLoadEncryptedKeyUsesCachedPassphrase(t *testing.T) {
	loader, _ := newLoader()
	pemBytes1 := genKeyPEM(t, "k1", "shared-pass")
	pemBytes2 := genKeyPEM(t, "k2", "shared-pass")

	if outcome := loader.Load(pemBytes1, "shared-pass", nil); outcome.Result != ResultOK {
		t.Fatalf("first load = %+v, want OK", outcome)
	}
	// Second key, same passphrase, no caller-supplied passphrase this
	// time — must be found via the cache alone.
	if outcome := loader.Load(pemBytes2, "", nil); outcome.Result != ResultOK {
		t.Fatalf("second load (cached passphrase) = %+v, want OK", outcome)
	}
}

func TestLoadUnsupportedFormatFails(t *testing.T) {
	loader, _ := newLoader()
	outcome := loader.Load([]byte("not a key file"), "", nil)
	if outcome.Result != ResultFailure {
		t.Fatalf("outcome = %+v, want FAILURE", outcome)
	}
}

func TestEnumerateVisitsLoadedKeys(t *testing.T) {
	loader, _ := newLoader()
	pemBytes := genKeyPEM(t, "carol@host", "")
	if outcome := loader.Load(pemBytes, "", nil); outcome.Result != ResultOK {
		t.Fatalf("load = %+v, want OK", outcome)
	}

	var comments []string
	err := loader.Enumerate(func(fingerprint, comment string, publicBlob []byte) {
		comments = append(comments, comment)
		if fingerprint == "" {
			t.Error("expected non-empty fingerprint")
		}
		if len(publicBlob) == 0 {
			t.Error("expected non-empty public blob")
		}
	})
	if err != nil {
		t.Fatalf("enumerate error: %v", err)
	}
	if len(comments) != 1 || comments[0] != "carol@host" {
		t.Fatalf("comments = %v, want [carol@host]", comments)
	}
}
