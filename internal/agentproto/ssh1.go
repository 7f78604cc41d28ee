package agentproto

import (
	"bytes"

	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/keystore"
	"github.com/kryptco/sshkeyd/internal/wire"
)

func (h *Handler) handleSSH1RequestIdentities(cs *ClientState) []byte {
	var buf bytes.Buffer
	if err := h.Store.Enumerate(1, &buf); err != nil {
		h.logType("ssh1 enumerate error")
		return failure()
	}
	h.logDetail(cs, "ssh1 request identities")
	return append([]byte{SSH1AgentRSAIdentitiesAnswer}, buf.Bytes()...)
}

// handleSSH1Challenge implements spec.md §4.2's SSH1_AGENTC_RSA_CHALLENGE:
// parse (public-key-no-length, MP-int challenge, 16-byte session id,
// uint32 response_type), reject unless response_type==1, locate the key by
// its reconstructed blob, decrypt, and reply
// MD5(response32 || session_id).
func (h *Handler) handleSSH1Challenge(cs *ClientState, body []byte) []byte {
	r := wire.NewReader(body)
	pub := cryptoprovider.ParseSSH1PublicKeyNoLength(r)
	challenge := r.MPInt()
	sessionID := r.Bytes(16)
	responseType := r.Uint32()
	if r.Err() != nil {
		h.logType("ssh1 challenge: malformed request")
		return failure()
	}
	if responseType != sshAgentRSAChallengeResponseType {
		h.logType("ssh1 challenge: unsupported response_type")
		return failure()
	}

	blob := pub.PublicBlob()
	key := h.Store.Find(1, blob)
	if key == nil {
		h.logDetail(cs, "ssh1 challenge: key not found")
		return failure()
	}
	secret, ok := key.Secret.(keystore.SSH1Secret)
	if !ok || secret.Priv == nil {
		h.logType("ssh1 challenge: key has no private half")
		return failure()
	}

	response, err := cryptoprovider.RSADecryptChallenge(secret.Priv, challenge)
	if err != nil {
		h.logType("ssh1 challenge: decrypt failed")
		return failure()
	}
	digest := cryptoprovider.MD5ChallengeResponse(response, sessionID)

	h.logDetail(cs, "ssh1 challenge answered")
	out := wire.NewWriter()
	out.Byte(SSH1AgentRSAResponse)
	out.Raw(digest[:])
	return out.Bytes()
}

// handleSSH1AddIdentity parses an SSH1_AGENTC_ADD_RSA_IDENTITY body:
// bits, n, e, d, iqmp, p, q, comment. (The historical SSH-1 wire format
// stores p and q in swapped order relative to PKCS#1; since SSH-1
// key-file loading itself is out of this spec's scope (spec.md §1), this
// handler only needs internal consistency, so the swap is irrelevant and
// not reproduced.)
func (h *Handler) handleSSH1AddIdentity(cs *ClientState, body []byte) []byte {
	r := wire.NewReader(body)
	bits := r.Uint32()
	n := r.MPInt()
	e := r.MPInt()
	d := r.MPInt()
	iqmp := r.MPInt()
	p := r.MPInt()
	q := r.MPInt()
	comment := r.String()
	if r.Err() != nil {
		h.logType("ssh1 add: malformed request")
		return failure()
	}

	priv := &cryptoprovider.SSH1PrivateKey{
		Pub:  cryptoprovider.SSH1PublicKey{Bits: int(bits), E: e, N: n},
		D:    d,
		P:    p,
		Q:    q,
		IQMP: iqmp,
	}
	if err := cryptoprovider.RSAVerify(priv); err != nil {
		h.logType("ssh1 add: key failed verification")
		return failure()
	}

	key := &keystore.Key{
		Version:    1,
		PublicBlob: priv.Pub.PublicBlob(),
		Comment:    defaultComment(string(comment), "ssh1-rsa-key"),
		Secret:     keystore.SSH1Secret{Priv: priv},
	}
	if !h.Store.Add(key) {
		h.logDetail(cs, "ssh1 add: duplicate key")
		priv.Release()
		return failure()
	}
	h.logDetail(cs, "ssh1 add: key added")
	h.notifyKeyListUpdate()
	return success()
}

func (h *Handler) handleSSH1RemoveIdentity(cs *ClientState, body []byte) []byte {
	r := wire.NewReader(body)
	pub := cryptoprovider.ParseSSH1PublicKeyNoLength(r)
	if r.Err() != nil {
		h.logType("ssh1 remove: malformed request")
		return failure()
	}
	removed := h.Store.Remove(1, pub.PublicBlob())
	if removed == nil {
		h.logDetail(cs, "ssh1 remove: key not found")
		return failure()
	}
	removed.Release()
	h.logDetail(cs, "ssh1 remove: key removed")
	return success()
}
