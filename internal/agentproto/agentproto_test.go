package agentproto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"math/big"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/keystore"
	"github.com/kryptco/sshkeyd/internal/wire"
)

func newHandler() *Handler {
	return &Handler{Store: keystore.New()}
}

func ed25519AddIdentityBody(t *testing.T, comment string) []byte {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_ = pub
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(block)

	w := wire.NewWriter()
	w.String(pemBytes)
	w.String([]byte(comment))
	return w.Bytes()
}

// Scenario A: add & list (SSH-2).
func TestScenarioA_AddAndList(t *testing.T) {
	h := newHandler()
	addBody := ed25519AddIdentityBody(t, "k1")
	resp := h.Handle(&ClientState{}, append([]byte{SSH2AgentcAddIdentity}, addBody...))
	if !bytes.Equal(resp, success()) {
		t.Fatalf("add response = %v, want success", resp)
	}

	listResp := h.Handle(&ClientState{}, []byte{SSH2AgentcRequestIdentities})
	r := wire.NewReader(listResp)
	if got := r.Byte(); got != SSH2AgentIdentitiesAnswer {
		t.Fatalf("list response type = %d, want %d", got, SSH2AgentIdentitiesAnswer)
	}
	count := r.Uint32()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	pubBlob := r.String()
	comment := r.String()
	if r.Err() != nil {
		t.Fatalf("parse error: %v", r.Err())
	}
	if string(comment) != "k1" {
		t.Fatalf("comment = %q, want k1", comment)
	}
	if len(pubBlob) == 0 {
		t.Fatal("expected non-empty public blob")
	}
}

// Scenario B: duplicate add.
func TestScenarioB_DuplicateAdd(t *testing.T) {
	h := newHandler()
	addBody := ed25519AddIdentityBody(t, "k1")
	req := append([]byte{SSH2AgentcAddIdentity}, addBody...)
	if resp := h.Handle(&ClientState{}, req); !bytes.Equal(resp, success()) {
		t.Fatalf("first add = %v, want success", resp)
	}
	if resp := h.Handle(&ClientState{}, req); !bytes.Equal(resp, failure()) {
		t.Fatalf("duplicate add = %v, want failure", resp)
	}
}

// Scenario C: sign with a flag bit the algorithm doesn't support.
func TestScenarioC_SignBadFlag(t *testing.T) {
	h := newHandler()
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(rsaPriv)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(rsaPriv, "rsa1")
	if err != nil {
		t.Fatal(err)
	}
	addBody := func() []byte {
		w := wire.NewWriter()
		w.String(pem.EncodeToMemory(block))
		w.String([]byte("rsa1"))
		return w.Bytes()
	}()
	if resp := h.Handle(&ClientState{}, append([]byte{SSH2AgentcAddIdentity}, addBody...)); !bytes.Equal(resp, success()) {
		t.Fatalf("add = %v, want success", resp)
	}

	pubBlob := signer.PublicKey().Marshal()
	w := wire.NewWriter()
	w.String(pubBlob)
	w.String([]byte("data-to-sign"))
	w.Uint32(0x01) // a bit outside RSA's supported_flags (0x06)
	resp := h.Handle(&ClientState{}, append([]byte{SSH2AgentcSignRequest}, w.Bytes()...))
	if !bytes.Equal(resp, failure()) {
		t.Fatalf("sign with bad flag = %v, want failure", resp)
	}
}

// Scenario D: SSH-1 RSA challenge.
func TestScenarioD_SSH1Challenge(t *testing.T) {
	h := newHandler()
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	pub := cryptoprovider.SSH1PublicKey{
		Bits: rsaPriv.N.BitLen(),
		E:    big.NewInt(int64(rsaPriv.E)),
		N:    rsaPriv.N,
	}
	priv := &cryptoprovider.SSH1PrivateKey{
		Pub:  pub,
		D:    rsaPriv.D,
		P:    rsaPriv.Primes[0],
		Q:    rsaPriv.Primes[1],
		IQMP: new(big.Int).ModInverse(rsaPriv.Primes[1], rsaPriv.Primes[0]),
	}

	addW := wire.NewWriter()
	addW.Uint32(uint32(pub.Bits))
	addW.MPInt(pub.N)
	addW.MPInt(pub.E)
	addW.MPInt(priv.D)
	addW.MPInt(priv.IQMP)
	addW.MPInt(priv.P)
	addW.MPInt(priv.Q)
	addW.String([]byte("ssh1key"))
	if resp := h.Handle(&ClientState{}, append([]byte{SSH1AgentcAddRSAIdentity}, addW.Bytes()...)); !bytes.Equal(resp, success()) {
		t.Fatalf("ssh1 add = %v, want success", resp)
	}

	secret := big.NewInt(0x1234567890abcdef)
	challenge := new(big.Int).Exp(secret, big.NewInt(int64(rsaPriv.E)), rsaPriv.N)
	sessionID := make([]byte, 16)
	for i := range sessionID {
		sessionID[i] = byte(i)
	}

	reqW := wire.NewWriter()
	reqW.Uint32(uint32(pub.Bits))
	reqW.MPInt(pub.E)
	reqW.MPInt(pub.N)
	reqW.MPInt(challenge)
	reqW.Raw(sessionID)
	reqW.Uint32(1)

	resp1 := h.Handle(&ClientState{}, append([]byte{SSH1AgentcRSAChallenge}, reqW.Bytes()...))
	resp2 := h.Handle(&ClientState{}, append([]byte{SSH1AgentcRSAChallenge}, reqW.Bytes()...))

	if len(resp1) != 1+16 || resp1[0] != SSH1AgentRSAResponse {
		t.Fatalf("response = %v, want type %d + 16 bytes", resp1, SSH1AgentRSAResponse)
	}
	// Testable property 5: idempotent across repeated submissions.
	if !bytes.Equal(resp1, resp2) {
		t.Fatalf("challenge response not idempotent: %v != %v", resp1, resp2)
	}

	expectedResponse, err := cryptoprovider.RSADecryptChallenge(priv, challenge)
	if err != nil {
		t.Fatal(err)
	}
	expectedDigest := cryptoprovider.MD5ChallengeResponse(expectedResponse, sessionID)
	if !bytes.Equal(resp1[1:], expectedDigest[:]) {
		t.Fatalf("digest mismatch")
	}
}

func TestUnknownMessageTypeFails(t *testing.T) {
	h := newHandler()
	resp := h.Handle(&ClientState{}, []byte{0xFF})
	if !bytes.Equal(resp, failure()) {
		t.Fatalf("resp = %v, want failure", resp)
	}
}

func TestEmptyRequestFails(t *testing.T) {
	h := newHandler()
	resp := h.Handle(&ClientState{}, nil)
	if !bytes.Equal(resp, failure()) {
		t.Fatalf("resp = %v, want failure", resp)
	}
}
