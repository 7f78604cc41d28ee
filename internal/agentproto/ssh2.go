package agentproto

import (
	"bytes"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/keystore"
	"github.com/kryptco/sshkeyd/internal/wire"
)

func (h *Handler) handleSSH2RequestIdentities(cs *ClientState) []byte {
	var buf bytes.Buffer
	if err := h.Store.Enumerate(2, &buf); err != nil {
		h.logType("ssh2 enumerate error")
		return failure()
	}
	h.logDetail(cs, "ssh2 request identities")
	return append([]byte{SSH2AgentIdentitiesAnswer}, buf.Bytes()...)
}

// handleSSH2Sign implements spec.md §4.2's SSH2_AGENTC_SIGN_REQUEST:
// parse (string keyblob, string data, optional uint32 flags defaulting to
// 0), reject unsupported flag bits without ever invoking the signer, and
// reply SSH2_AGENT_SIGN_RESPONSE || string(signature).
func (h *Handler) handleSSH2Sign(cs *ClientState, body []byte) []byte {
	r := wire.NewReader(body)
	keyBlob := r.String()
	data := r.String()
	var flags agent.SignatureFlags
	if len(r.Remaining()) >= 4 {
		flags = agent.SignatureFlags(r.Uint32())
	}
	if r.Err() != nil {
		h.logType("ssh2 sign: malformed request")
		return failure()
	}

	key := h.Store.Find(2, keyBlob)
	if key == nil {
		h.logDetail(cs, "ssh2 sign: key not found")
		return failure()
	}
	secret, ok := key.Secret.(keystore.SSH2Secret)
	if !ok {
		h.logType("ssh2 sign: key has no private half")
		return failure()
	}

	sig, err := secret.Identity.Sign(flags, data)
	if err != nil {
		h.logDetail(cs, "ssh2 sign: rejected ("+err.Error()+")")
		return failure()
	}

	h.logDetail(cs, "ssh2 sign: signed")
	out := wire.NewWriter()
	out.Byte(SSH2AgentSignResponse)
	out.String(ssh.Marshal(sig))
	return out.Bytes()
}

// handleSSH2AddIdentity parses an OpenSSH-style private key blob (string)
// followed by a trailing comment string, verifies it by parsing, and adds
// it (spec.md §4.2's ADD operations row).
func (h *Handler) handleSSH2AddIdentity(cs *ClientState, body []byte) []byte {
	r := wire.NewReader(body)
	keyBlob := r.String()
	comment := r.String()
	if r.Err() != nil {
		h.logType("ssh2 add: malformed request")
		return failure()
	}

	signer, err := cryptoprovider.ParseSSH2PrivateKey(keyBlob)
	if err != nil {
		h.logType("ssh2 add: key failed to parse/verify")
		return failure()
	}
	identity := cryptoprovider.NewSSH2Identity(signer)

	key := &keystore.Key{
		Version:    2,
		PublicBlob: identity.Public.Marshal(),
		Comment:    defaultComment(string(comment), identity.Public.Type()+"-key"),
		Secret:     keystore.SSH2Secret{Identity: identity},
	}
	if !h.Store.Add(key) {
		h.logDetail(cs, "ssh2 add: duplicate key")
		return failure()
	}
	h.logDetail(cs, "ssh2 add: key added")
	h.notifyKeyListUpdate()
	return success()
}

func (h *Handler) handleSSH2RemoveIdentity(cs *ClientState, body []byte) []byte {
	r := wire.NewReader(body)
	blob := r.String()
	if r.Err() != nil {
		h.logType("ssh2 remove: malformed request")
		return failure()
	}
	removed := h.Store.Remove(2, blob)
	if removed == nil {
		h.logDetail(cs, "ssh2 remove: key not found")
		return failure()
	}
	removed.Release()
	h.logDetail(cs, "ssh2 remove: key removed")
	return success()
}
