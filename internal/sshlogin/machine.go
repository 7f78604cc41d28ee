// Package sshlogin implements C6, the SSH1LoginMachine: the SSH-1
// combined key-exchange and user-authentication handshake, driven from a
// sequence of inbound packets and out-of-band prompt/dialog events
// (spec.md §4.6). Grounded directly on original_source/ssh1login.c.
//
// The original is a single-threaded coroutine built on the "line-number
// resume" idiom (crState, crMaybeWaitUntilV). Per spec.md §9's design
// note, the idiomatic Go rendition is a native async task: Run blocks the
// calling goroutine at exactly the suspension points original_source
// names (waiting for a packet, waiting for prompt input, waiting for a
// dialog result, waiting for an agent reply) rather than hand-encoding a
// resume-point enum. Callers run Run in its own goroutine per login, the
// same way router.Router.Serve is one goroutine per connection.
package sshlogin

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/op/go-logging"

	"github.com/kryptco/sshkeyd/internal/agentproto"
	"github.com/kryptco/sshkeyd/internal/config"
	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/keyloader"
	"github.com/kryptco/sshkeyd/internal/passphrase"
	"github.com/kryptco/sshkeyd/internal/wire"
	"github.com/kryptco/sshkeyd/internal/zero"
)

// HostKeyDecision is the three-valued host-key/weak-cipher dialog result
// named in spec.md §4.6. A dialog function blocks until the user (or an
// automated policy) decides; there is no "pending" value in this
// rendition because the native-async-task suspension point *is* the
// blocking call itself.
type HostKeyDecision bool

const (
	Reject HostKeyDecision = false
	Accept HostKeyDecision = true
)

// HostKeyDialogFunc asks whether to trust a previously-unseen host key.
type HostKeyDialogFunc func(fingerprint string, hostKey cryptoprovider.SSH1PublicKey) HostKeyDecision

// WeakCipherDialogFunc asks whether to proceed with a cipher the user's
// preference list flagged with the WARN sentinel.
type WeakCipherDialogFunc func(cipherName string) HostKeyDecision

// PromptFunc is the single reused acquisition pattern spec.md §4.6 calls
// "seat_get_userpass_input": ask for a line of text, optionally without
// echo (passwords/passphrases). ok=false means the user cancelled.
type PromptFunc func(prompt string, echo bool) (result string, ok bool)

// KeyFile is a pre-parsed SSH-1 private key file available for
// public-key-file authentication. Priv is nil until Decrypt succeeds.
//
// Parsing the on-disk SSH-1 private-key-file format itself (a legacy,
// PuTTY/OpenSSH-predating binary layout, distinct from the OpenSSH PEM
// format internal/keyloader parses) is out of scope: no dependency in
// this module's stack implements it, and original_source's own parser
// (sshpubk.c) is not part of the retrieval pack's Go examples. Decrypt is
// therefore an injected hook so the authentication *state machine* above
// it is fully exercised and testable independent of that file format.
type KeyFile struct {
	Pub     cryptoprovider.SSH1PublicKey
	Priv    *cryptoprovider.SSH1PrivateKey
	Decrypt func(passphrase string) (*cryptoprovider.SSH1PrivateKey, error)
}

// Successor is the connection-layer handoff target (spec.md §4.6's
// "Handoff"): once authentication succeeds, this layer publishes the
// negotiated protocol flags and is replaced by its successor.
type Successor interface {
	HandOff(localProtoFlags uint32)
}

// Machine is C6.
type Machine struct {
	Conf      config.Config
	Transport PacketTransport
	Log       *logging.Logger

	HostKeyDialog    HostKeyDialogFunc
	WeakCipherDialog WeakCipherDialogFunc
	Prompt           PromptFunc

	Agent      keyloader.Agent // nil disables agent-RSA auth
	KeyFile    *KeyFile        // nil disables pubkey-file auth
	Passphrase *passphrase.Cache

	Username  string // pre-configured remote user, or "" to prompt
	Successor Successor

	tisRefused, ccardRefused     bool
	triedAgent, triedPubkeyFile  bool
}

// Run drives the entire handshake to completion or a fatal error. It owns
// no goroutines of its own; the caller is expected to invoke it from a
// dedicated per-connection goroutine.
func (m *Machine) Run() error {
	pkt, err := m.awaitPubKeys()
	if err != nil {
		return err
	}

	if err := m.verifyHostKey(pkt.HostKey); err != nil {
		return err
	}

	cipherType, err := m.chooseCipher(pkt.SupportedCiphersMask)
	if err != nil {
		return err
	}

	sessionID, localProtoFlags, err := m.sendSessionKey(pkt, cipherType)
	if err != nil {
		return err
	}

	username, err := m.getUsername()
	if err != nil {
		return err
	}
	if err := m.Transport.Send(cmsgUser, wire.NewWriter().String([]byte(username)).Bytes()); err != nil {
		return err
	}

	if err := m.authRound(pkt, sessionID); err != nil {
		return err
	}

	if m.Conf.EnableCompression {
		m.tryCompression()
	}

	return m.handoff(localProtoFlags)
}

// awaitPubKeys implements the AWAIT_PUBKEYS state: the first server
// packet must be SMSG_PUBLIC_KEY.
func (m *Machine) awaitPubKeys() (serverPublicKeyPacket, error) {
	msgType, payload, err := m.recvNonCommon()
	if err != nil {
		return serverPublicKeyPacket{}, err
	}
	if msgType != smsgPublicKey {
		return serverPublicKeyPacket{}, fmt.Errorf("expected SMSG_PUBLIC_KEY, got type %d", msgType)
	}
	return parseServerPublicKeyPacket(payload)
}

// verifyHostKey implements spec.md §4.6's host-key verification: check
// the manual list first, falling through to the interactive dialog only
// when host-key trust is wholly unconfigured.
func (m *Machine) verifyHostKey(hostKey cryptoprovider.SSH1PublicKey) error {
	fp := hostKeyFingerprint(hostKey)
	if m.Conf.ManualHostKeys != nil {
		for _, known := range m.Conf.ManualHostKeys {
			if known == fp {
				return nil
			}
		}
		return fmt.Errorf("host key %s did not appear in manually configured list", fp)
	}
	if m.HostKeyDialog == nil || m.HostKeyDialog(fp, hostKey) != Accept {
		return errors.New("user rejected host key")
	}
	return nil
}

func hostKeyFingerprint(pub cryptoprovider.SSH1PublicKey) string {
	sum := sha256.Sum256(pub.PublicBlob())
	return fmt.Sprintf("SHA256:%x", sum[:])
}

// chooseCipher implements spec.md §4.6's cipher negotiation: walk the
// user's preference list, treating WARN as a marker that raises the
// weak-cipher dialog before the chosen cipher is used, and AES as silently
// unsupported in SSH-1.
func (m *Machine) chooseCipher(supportedMask uint32) (byte, error) {
	warn := false
	for _, pref := range m.Conf.CipherPreference {
		switch pref {
		case config.CipherWarn:
			warn = true
			continue
		case config.CipherAES:
			continue // unsupported in SSH-1, silently skipped
		}
		cipherType, ok := cipherTypeFor(pref)
		if !ok || !cipherMaskSupports(supportedMask, cipherType) {
			continue
		}
		if warn {
			name := string(pref)
			if m.WeakCipherDialog == nil || m.WeakCipherDialog(name) != Accept {
				return 0, fmt.Errorf("user rejected weak cipher %s", name)
			}
		}
		return byte(cipherType), nil
	}
	if !cipherMaskSupports(supportedMask, cryptoprovider.Cipher3DES) {
		return 0, errors.New("server violates protocol by not supporting 3DES")
	}
	return 0, errors.New("no acceptable cipher in common with server")
}

func cipherTypeFor(c config.Cipher) (int, bool) {
	switch c {
	case config.Cipher3DES:
		return cryptoprovider.Cipher3DES, true
	case config.CipherBlowfish:
		return cryptoprovider.CipherBlowfish, true
	case config.CipherDES:
		return cryptoprovider.CipherDES, true
	default:
		return 0, false
	}
}

// sendSessionKey implements spec.md §4.6's session id / session key /
// CMSG_SESSION_KEY sequence, then forces a synchronous flush and installs
// the bulk cipher before any subsequent packet is sent.
func (m *Machine) sendSessionKey(pkt serverPublicKeyPacket, cipherType byte) (sessionID [16]byte, localProtoFlags uint32, err error) {
	sessionID = cryptoprovider.SessionID(pkt.HostKey.N, pkt.ServerKey.N, pkt.Cookie)

	var sessionKey [32]byte
	if _, err := rand.Read(sessionKey[:]); err != nil {
		return sessionID, 0, err
	}

	var xored [32]byte
	for i := 0; i < 16; i++ {
		xored[i] = sessionKey[i] ^ sessionID[i]
	}
	copy(xored[16:], sessionKey[16:])

	inner, outer := pkt.ServerKey, pkt.HostKey
	if modulusByteLen(pkt.HostKey.N) < modulusByteLen(pkt.ServerKey.N) {
		inner, outer = pkt.HostKey, pkt.ServerKey
	}

	innerCipher, err := cryptoprovider.RSAEncryptPKCS1(inner, xored[:])
	if err != nil {
		return sessionID, 0, err
	}
	outerCipher, err := cryptoprovider.RSAEncryptPKCS1(outer, innerCipher)
	if err != nil {
		return sessionID, 0, err
	}

	localProtoFlags = 0 // no optional SSH-1 protocol extensions negotiated
	w := wire.NewWriter()
	w.Byte(cipherType)
	w.Raw(pkt.Cookie[:])
	w.Uint16(uint16(len(outerCipher) * 8))
	w.Raw(outerCipher)
	w.Uint32(localProtoFlags)
	if err := m.Transport.Send(cmsgSessionKey, w.Bytes()); err != nil {
		return sessionID, 0, err
	}

	// Zeroize the temporary RSA buffer and both public-key copies' moduli
	// and exponents before the flush, per spec.md §9's manual-zeroization
	// rule; neither pkt.ServerKey nor pkt.HostKey is read again past this
	// function (authRound only consults pkt.SupportedAuthsMask).
	zero.Bytes(xored[:])
	zero.Bytes(innerCipher)
	zero.Bytes(outerCipher)
	zeroBigInt(pkt.ServerKey.E)
	zeroBigInt(pkt.ServerKey.N)
	zeroBigInt(pkt.HostKey.E)
	zeroBigInt(pkt.HostKey.N)

	if err := m.Transport.Flush(); err != nil {
		return sessionID, 0, err
	}
	bulkCipher, err := cryptoprovider.InstallCipher(cipherType, sessionKey)
	zero.Bytes(sessionKey[:])
	if err != nil {
		return sessionID, 0, err
	}
	m.Transport.InstallCipher(bulkCipher)

	if _, _, err := m.recvExpect(smsgSuccess); err != nil {
		return sessionID, 0, fmt.Errorf("server rejected session key: %w", err)
	}
	return sessionID, localProtoFlags, nil
}

func modulusByteLen(n *big.Int) int { return (n.BitLen() + 7) / 8 }

// zeroBigInt scrubs a big.Int in place, the same best-effort technique
// cryptoprovider.SSH1PrivateKey.Release uses for the private exponent.
func zeroBigInt(n *big.Int) {
	if n != nil {
		n.SetInt64(0)
	}
}

// getUsername implements spec.md §4.6's username acquisition: configured
// value if present, else a blocking prompt.
func (m *Machine) getUsername() (string, error) {
	if m.Username != "" {
		return m.Username, nil
	}
	if m.Prompt == nil {
		return "", errors.New("no username configured and no prompt available")
	}
	username, ok := m.Prompt("login as: ", true)
	if !ok {
		return "", errors.New("user aborted at username prompt")
	}
	return username, nil
}

// recvNonCommon reads packets until one is not a "centrally handled"
// message (spec.md §4.6): MSG_DISCONNECT aborts, MSG_DEBUG is logged and
// dropped, MSG_IGNORE is silently dropped.
func (m *Machine) recvNonCommon() (byte, []byte, error) {
	for {
		msgType, payload, err := m.Transport.Recv()
		if err != nil {
			return 0, nil, err
		}
		switch msgType {
		case msgDisconnect:
			return 0, nil, fmt.Errorf("server disconnected: %s", string(payload))
		case msgDebug:
			if m.Log != nil {
				m.Log.Debug("server debug: " + string(payload))
			}
			continue
		case msgIgnore:
			continue
		default:
			return msgType, payload, nil
		}
	}
}

// recvExpect reads the next non-common packet and requires it to be
// exactly want, treating SMSG_FAILURE as a generic rejection error.
func (m *Machine) recvExpect(want byte) (byte, []byte, error) {
	msgType, payload, err := m.recvNonCommon()
	if err != nil {
		return 0, nil, err
	}
	if msgType == smsgFailure {
		return msgType, payload, errors.New("server sent SMSG_FAILURE")
	}
	if msgType != want {
		return msgType, payload, fmt.Errorf("unexpected packet type %d, want %d", msgType, want)
	}
	return msgType, payload, nil
}

// handoff implements spec.md §4.6's Handoff: publish the negotiated
// local_protoflags to the successor and replace this layer. After this
// call the machine must not be used again.
func (m *Machine) handoff(localProtoFlags uint32) error {
	if m.Successor == nil {
		return errors.New("no successor layer configured for handoff")
	}
	m.Successor.HandOff(localProtoFlags)
	return nil
}

// tryCompression implements spec.md §4.6's optional compression request:
// on SMSG_SUCCESS the BPP is assumed to start compression on its own
// recognition of the reply (out of scope here); on SMSG_FAILURE, log and
// continue without treating it as fatal.
func (m *Machine) tryCompression() {
	if err := m.Transport.Send(cmsgRequestCompress, wire.NewWriter().Uint32(6).Bytes()); err != nil {
		return
	}
	msgType, _, err := m.recvNonCommon()
	if err != nil {
		return
	}
	if msgType == smsgFailure && m.Log != nil {
		m.Log.Debug("server refused compression request")
	}
}

// authRound implements spec.md §4.6's authentication round: repeat the
// method cascade (agent-RSA, then public-key-file, then TIS, then
// CryptoCard, then password) until the server answers SMSG_SUCCESS.
//
// original_source/ssh1login.c threads a single reused "pktin" variable
// through this whole cascade so a refusal from one method also satisfies
// the outer while(pktin->type==SSH1_SMSG_FAILURE)'s re-check without an
// extra round-trip. That coupling is an artifact of the coroutine's
// control flow, not an observable wire behavior: every probe this
// rendition sends still waits for exactly one server reply before the
// next probe goes out. Each try* method below is self-contained and reads
// its own confirmation packet, which is wire-compatible with the original
// but easier to follow as separate Go methods.
//
// TIS and CryptoCard are also tried as mutually exclusive per round here
// (first one eligible and not yet refused wins); the original's fallthrough
// lets a CryptoCard probe follow a TIS challenge in the same round even
// though only one of the two responses can ultimately be sent, which has
// no equivalent in any of the retrieval pack's agent-style request/response
// code and is not reproduced.
func (m *Machine) authRound(pkt serverPublicKeyPacket, sessionID [16]byte) error {
	msgType, _, err := m.recvNonCommon()
	if err != nil {
		return err
	}
	if !authMaskSupports(pkt.SupportedAuthsMask, authRSA) {
		m.triedAgent = true
		m.triedPubkeyFile = true
	}

	for {
		if msgType == smsgSuccess {
			// The server may require no further authentication at all for
			// this user (original_source/ssh1login.c's
			// "if (pktin->type == SSH1_SMSG_SUCCESS)" short-circuit), or a
			// prior probe in this same round already won.
			return nil
		}
		if msgType != smsgFailure {
			return fmt.Errorf("unexpected packet type %d during authentication", msgType)
		}

		if m.Conf.TryAgent && m.Agent != nil && !m.triedAgent {
			m.triedAgent = true
			ok, err := m.tryAgentRSA(sessionID)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
		if m.KeyFile != nil && !m.triedPubkeyFile {
			m.triedPubkeyFile = true
			ok, err := m.tryPubkeyFile(sessionID)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}

		pwpktType := byte(cmsgAuthPassword)
		var secret string
		haveChallengeResponse := false

		switch {
		case m.Conf.TryTIS && authMaskSupports(pkt.SupportedAuthsMask, authTIS) && !m.tisRefused:
			response, refused, err := m.tryChallenge(cmsgAuthTIS, smsgAuthTISChallenge, "SSH TIS authentication")
			if err != nil {
				return err
			}
			if refused {
				m.tisRefused = true
			} else {
				pwpktType, secret, haveChallengeResponse = cmsgAuthTISResponse, response, true
			}
		case m.Conf.TryCryptoCard && authMaskSupports(pkt.SupportedAuthsMask, authCCard) && !m.ccardRefused:
			response, refused, err := m.tryChallenge(cmsgAuthCCard, smsgAuthCCardChallenge, "SSH CryptoCard authentication")
			if err != nil {
				return err
			}
			if refused {
				m.ccardRefused = true
			} else {
				pwpktType, secret, haveChallengeResponse = cmsgAuthCCardResponse, response, true
			}
		}

		if !haveChallengeResponse {
			if !authMaskSupports(pkt.SupportedAuthsMask, authPassword) {
				return errors.New("server offers no authentication method this client can satisfy")
			}
			if m.Prompt == nil {
				return errors.New("password required but no prompt available")
			}
			pw, ok := m.Prompt("password: ", false)
			if !ok {
				return errors.New("user aborted at password prompt")
			}
			secret = pw
		}

		if haveChallengeResponse {
			if err := m.Transport.Send(pwpktType, wire.NewWriter().String([]byte(secret)).Bytes()); err != nil {
				return err
			}
		} else if err := sendPassword(m.Transport, pwpktType, secret, m.Conf.RemoteBugMask); err != nil {
			return err
		}

		msgType, _, err = m.recvNonCommon()
		if err != nil {
			return err
		}
	}
}

// tryAgentRSA implements the Agent-RSA sub-flow: enumerate the agent's
// SSH-1 identities, and for each one (skipping any that don't match a
// configured key file's public blob) run the
// CMSG_AUTH_RSA/SMSG_AUTH_RSA_CHALLENGE/CMSG_AUTH_RSA_RESPONSE exchange,
// asking the agent to sign the challenge.
func (m *Machine) tryAgentRSA(sessionID [16]byte) (bool, error) {
	resp := m.Agent.Submit([]byte{agentproto.SSH1AgentcRequestRSAIdentities})
	if len(resp) < 1 || resp[0] != agentproto.SSH1AgentRSAIdentitiesAnswer {
		return false, nil
	}
	r := wire.NewReader(resp[1:])
	count := r.Uint32()
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		pub := cryptoprovider.ParseSSH1PublicKeyNoLength(r)
		_ = r.String() // comment, unused for auth purposes
		if r.Err() != nil {
			break
		}
		if m.KeyFile != nil && !bytes.Equal(pub.PublicBlob(), m.KeyFile.Pub.PublicBlob()) {
			continue
		}

		if err := m.Transport.Send(cmsgAuthRSA, wire.NewWriter().MPInt(pub.N).Bytes()); err != nil {
			return false, err
		}
		msgType, payload, err := m.recvNonCommon()
		if err != nil {
			return false, err
		}
		if msgType != smsgAuthRSAChallenge {
			continue // server refused this key; try the next one
		}
		challenge := wire.NewReader(payload).MPInt()

		sig, ok := m.agentSignSSH1(pub, challenge, sessionID)
		if !ok {
			continue
		}
		if err := m.Transport.Send(cmsgAuthRSAResponse, sig); err != nil {
			return false, err
		}
		msgType, _, err = m.recvNonCommon()
		if err != nil {
			return false, err
		}
		if msgType == smsgSuccess {
			return true, nil
		}
		// not accepted; try the next key
	}
	return false, nil
}

// agentSignSSH1 asks the agent to sign an RSA challenge for pub, in the
// same SSH1_AGENTC_RSA_CHALLENGE layout agentproto.handleSSH1Challenge
// parses: public-key-no-length, MP-int challenge, 16-byte session id,
// uint32 response_type (always 1, MD5-of-response).
func (m *Machine) agentSignSSH1(pub cryptoprovider.SSH1PublicKey, challenge *big.Int, sessionID [16]byte) ([]byte, bool) {
	w := wire.NewWriter()
	w.Byte(agentproto.SSH1AgentcRSAChallenge)
	w.Uint32(uint32(pub.Bits))
	w.MPInt(pub.E)
	w.MPInt(pub.N)
	w.MPInt(challenge)
	w.Raw(sessionID[:])
	w.Uint32(1)
	resp := m.Agent.Submit(w.Bytes())
	if len(resp) != 17 || resp[0] != agentproto.SSH1AgentRSAResponse {
		return nil, false
	}
	return resp[1:], true
}

// tryPubkeyFile implements the public-key-file sub-flow: acquire the
// decrypted private key (via the passphrase cache, then interactive
// retries), then run CMSG_AUTH_RSA/SMSG_AUTH_RSA_CHALLENGE locally,
// decrypting the challenge and replying with
// MD5(response32||session_id), zeroing the private exponent immediately
// after the local decrypt.
func (m *Machine) tryPubkeyFile(sessionID [16]byte) (bool, error) {
	if m.KeyFile.Priv == nil {
		ok, err := m.decryptKeyFile()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if err := m.Transport.Send(cmsgAuthRSA, wire.NewWriter().MPInt(m.KeyFile.Pub.N).Bytes()); err != nil {
		return false, err
	}
	msgType, payload, err := m.recvNonCommon()
	if err != nil {
		return false, err
	}
	if msgType == smsgFailure {
		return false, nil
	}
	if msgType != smsgAuthRSAChallenge {
		return false, fmt.Errorf("unexpected packet type %d answering CMSG_AUTH_RSA", msgType)
	}
	challenge := wire.NewReader(payload).MPInt()

	response, err := cryptoprovider.RSADecryptChallenge(m.KeyFile.Priv, challenge)
	m.KeyFile.Priv.Release()
	if err != nil {
		return false, nil
	}
	digest := cryptoprovider.MD5ChallengeResponse(response, sessionID[:])

	if err := m.Transport.Send(cmsgAuthRSAResponse, digest[:]); err != nil {
		return false, err
	}
	msgType, _, err = m.recvNonCommon()
	if err != nil {
		return false, err
	}
	if msgType == smsgSuccess {
		return true, nil
	}
	if msgType == smsgFailure {
		return false, nil
	}
	return false, fmt.Errorf("unexpected packet type %d answering CMSG_AUTH_RSA_RESPONSE", msgType)
}

// decryptKeyFile tries the passphrase cache's candidates, then prompts
// interactively until KeyFile.Decrypt succeeds or the user cancels. A
// false, nil return means the method can't be tried this round (no
// prompt available and every cached candidate failed), not a fatal error.
func (m *Machine) decryptKeyFile() (bool, error) {
	for _, candidate := range m.Passphrase.Candidates() {
		if priv, err := m.KeyFile.Decrypt(candidate); err == nil {
			m.KeyFile.Priv = priv
			return true, nil
		}
	}
	if m.Prompt == nil {
		return false, nil
	}
	for {
		passphrase, ok := m.Prompt(fmt.Sprintf("passphrase for key %s: ", hostKeyFingerprint(m.KeyFile.Pub)), false)
		if !ok {
			return false, errors.New("user aborted at passphrase prompt")
		}
		priv, err := m.KeyFile.Decrypt(passphrase)
		if err != nil {
			continue
		}
		m.KeyFile.Priv = priv
		m.Passphrase.Add(passphrase)
		return true, nil
	}
}

// tryChallenge implements the shared TIS/CryptoCard challenge-response
// shape: send the bare probe, and on a challenge apply spec.md §4.6's
// newline heuristic (a challenge containing a newline is shown verbatim
// as the prompt; otherwise it is an instruction line and the literal
// prompt is "Response: ").
func (m *Machine) tryChallenge(probeType, challengeType byte, label string) (response string, refused bool, err error) {
	if err := m.Transport.Send(probeType, nil); err != nil {
		return "", false, err
	}
	msgType, payload, err := m.recvNonCommon()
	if err != nil {
		return "", false, err
	}
	if msgType == smsgFailure {
		return "", true, nil
	}
	if msgType != challengeType {
		return "", false, fmt.Errorf("unexpected packet type %d answering %s probe", msgType, label)
	}

	challenge := string(wire.NewReader(payload).String())
	prompt := "Response: "
	if strings.Contains(challenge, "\n") {
		prompt = challenge
	} else if m.Log != nil && challenge != "" {
		m.Log.Info(label + ": " + challenge)
	}
	if m.Prompt == nil {
		return "", false, fmt.Errorf("%s required but no prompt available", label)
	}
	result, ok := m.Prompt(prompt, false)
	if !ok {
		return "", false, fmt.Errorf("user aborted at %s prompt", label)
	}
	return result, false, nil
}
