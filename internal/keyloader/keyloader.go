// Package keyloader implements C5 (spec.md §4.5): loading a key file into
// "the agent", which may be this process or a separately running one,
// with public-half dedup, a passphrase retry loop backed by the process
// passphrase cache, and submission of the resulting ADD_* request either
// in-process or over the wire. Grounded on tailscale-tskagent/tskagent.go's
// parseStoredKey/parseComment (PEM probing and comment extraction) and
// kryptco-kr/krd/ssh_agent.go's withOriginalAgent (the in-process vs
// out-of-process agent dispatch split).
package keyloader

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/kryptco/sshkeyd/internal/agentproto"
	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/passphrase"
	"github.com/kryptco/sshkeyd/internal/wire"
)

// Result is the three-valued outcome named in spec.md §6's "Exit / return
// codes of KeyLoader".
type Result int

const (
	ResultOK Result = iota
	ResultFailure
	ResultNeedPassphrase
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultFailure:
		return "FAILURE"
	case ResultNeedPassphrase:
		return "NEED_PP"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what Load returns: a result code, a human-readable message for
// FAILURE, and (for NEED_PP) the comment to show while re-prompting.
type Outcome struct {
	Result  Result
	Message string
	Comment string
}

// Agent is the narrow interface KeyLoader submits ADD_* requests through.
// An in-process agent is a direct *agentproto.Handler call; an
// out-of-process agent frames the request and reads back a synchronous
// reply over a socket (spec.md §4.5 step 5).
type Agent interface {
	// Submit sends one framed agent request body (type byte + payload)
	// and returns the framed response body.
	Submit(req []byte) []byte
}

// InProcessAgent adapts a local *agentproto.Handler to the Agent
// interface (the in-process counterpart of RemoteAgent). Submit has a pointer
// receiver because State (e.g. the suppress-logging flag) must persist
// across calls on the same instance rather than reset to a fresh copy
// each time.
type InProcessAgent struct {
	Handler *agentproto.Handler
	State   agentproto.ClientState
}

func (a *InProcessAgent) Submit(req []byte) []byte {
	return a.Handler.Handle(&a.State, req)
}

// RemoteAgent adapts a framed, length-prefixed socket connection (the
// wire protocol spec.md §6 defines) to the Agent interface.
type RemoteAgent struct {
	Conn interface {
		Write([]byte) (int, error)
		Read([]byte) (int, error)
	}
}

func (a RemoteAgent) Submit(req []byte) []byte {
	if _, err := a.Conn.Write(wire.FrameMessage(req)); err != nil {
		return []byte{agentproto.SSHAgentFailure}
	}
	var lenBuf [4]byte
	if _, err := readFull(a.Conn, lenBuf[:]); err != nil {
		return []byte{agentproto.SSHAgentFailure}
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := readFull(a.Conn, body); err != nil {
		return []byte{agentproto.SSHAgentFailure}
	}
	return body
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// PromptFunc requests an additional passphrase from the user, given the
// key's comment for context. It returns ok=false if the user cancelled.
type PromptFunc func(comment string) (passphrase string, ok bool)

// Loader is C5.
type Loader struct {
	Agent      Agent
	Passphrase *passphrase.Cache
}

// New builds a Loader bound to agent (in-process or remote) and a shared
// passphrase cache.
func New(agent Agent, cache *passphrase.Cache) *Loader {
	return &Loader{Agent: agent, Passphrase: cache}
}

// Load runs the full algorithm in spec.md §4.5: probe, dedup against the
// agent's current identities, decrypt (trying the caller-supplied
// passphrase, then cached passphrases, then prompting), and submit an
// ADD_* request.
func (l *Loader) Load(fileBytes []byte, callerPassphrase string, prompt PromptFunc) Outcome {
	comment := commentFromPEM(fileBytes)

	pubBlob, version, err := probePublicHalf(fileBytes)
	if err != nil {
		return Outcome{Result: ResultFailure, Message: err.Error()}
	}

	if present, err := l.alreadyLoaded(version, pubBlob); err != nil {
		return Outcome{Result: ResultFailure, Message: err.Error()}
	} else if present {
		return Outcome{Result: ResultOK}
	}

	usedPassphrase, outcome := l.decrypt(fileBytes, callerPassphrase, comment, prompt)
	if outcome.Result != ResultOK {
		return outcome
	}

	l.Passphrase.Add(usedPassphrase)

	// The agent parses the ADD_IDENTITY key without a passphrase, so an
	// encrypted key file is re-encoded in the clear before submission.
	keyBytes := fileBytes
	if usedPassphrase != "" {
		raw, err := ssh.ParseRawPrivateKeyWithPassphrase(fileBytes, []byte(usedPassphrase))
		if k, ok := raw.(*ed25519.PrivateKey); ok {
			raw = *k
		}
		var block *pem.Block
		if err == nil {
			block, err = ssh.MarshalPrivateKey(raw, comment)
		}
		if err != nil {
			return Outcome{Result: ResultFailure, Message: "re-encoding decrypted key: " + err.Error()}
		}
		keyBytes = pem.EncodeToMemory(block)
	}
	addReq := buildSSH2AddRequest(keyBytes, comment)
	resp := l.Agent.Submit(addReq)
	if len(resp) != 1 || resp[0] != agentproto.SSHAgentSuccess {
		return Outcome{Result: ResultFailure, Message: "agent rejected ADD_IDENTITY"}
	}
	return Outcome{Result: ResultOK}
}

// probePublicHalf implements step 1-2 of spec.md §4.5: only SSH-2
// (OpenSSH PEM) key files are accepted by this implementation — PuTTY's
// PPK format and bare SSH-1 key files have no parser in this codebase's
// dependency set (golang.org/x/crypto/ssh covers OpenSSH PEM only), so
// probing anything else fails with a human-readable reason rather than
// silently mis-parsing it.
func probePublicHalf(fileBytes []byte) (pubBlob []byte, version int, err error) {
	block, _ := pem.Decode(fileBytes)
	if block == nil || block.Type != "OPENSSH PRIVATE KEY" {
		return nil, 0, errors.New("unsupported key file format (expected OpenSSH private key)")
	}
	// Parsing without a passphrase succeeds for unencrypted keys and lets
	// us read the public half without touching the cache; for an encrypted
	// key the parse fails with a PassphraseMissingError, handled below.
	signer, err := ssh.ParsePrivateKey(fileBytes)
	if err == nil {
		return signer.PublicKey().Marshal(), 2, nil
	}
	var passErr *ssh.PassphraseMissingError
	if errors.As(err, &passErr) && passErr.PublicKey != nil {
		// The OpenSSH format's public half is unencrypted even when the
		// private half is passphrase-protected, so dedup can run before
		// decrypt() ever prompts for anything.
		return passErr.PublicKey.Marshal(), 2, nil
	}
	if errors.As(err, &passErr) {
		return nil, 2, nil
	}
	return nil, 0, errors.New("malformed key file")
}

// alreadyLoaded implements step 2: fetch the current identities list and
// byte-compare the loaded public blob against each entry.
func (l *Loader) alreadyLoaded(version int, pubBlob []byte) (bool, error) {
	if pubBlob == nil {
		// Public half unknown until we decrypt; dedup happens again
		// implicitly via the agent's own duplicate-add rejection.
		return false, nil
	}
	var reqType byte = agentproto.SSH2AgentcRequestIdentities
	if version == 1 {
		reqType = agentproto.SSH1AgentcRequestRSAIdentities
	}
	resp := l.Agent.Submit([]byte{reqType})
	entries, err := parseIdentityAnswer(resp, version)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if bytes.Equal(e.PublicBlob, pubBlob) {
			return true, nil
		}
	}
	return false, nil
}

// decrypt implements step 3-4: try the caller-supplied passphrase first,
// then each cached passphrase in most-recent order, prompting for a fresh
// one only once every candidate has failed.
func (l *Loader) decrypt(fileBytes []byte, callerPassphrase, comment string, prompt PromptFunc) (string, Outcome) {
	_, err := ssh.ParsePrivateKey(fileBytes)
	if err == nil {
		return "", Outcome{Result: ResultOK}
	}
	var passErr *ssh.PassphraseMissingError
	if !errors.As(err, &passErr) {
		return "", Outcome{Result: ResultFailure, Message: "malformed key file: " + err.Error()}
	}

	candidates := append([]string{}, l.Passphrase.Candidates()...)
	if callerPassphrase != "" {
		candidates = append([]string{callerPassphrase}, candidates...)
	}
	for _, candidate := range candidates {
		if _, err := ssh.ParsePrivateKeyWithPassphrase(fileBytes, []byte(candidate)); err == nil {
			return candidate, Outcome{Result: ResultOK}
		}
	}

	if prompt == nil {
		return "", Outcome{Result: ResultNeedPassphrase, Comment: comment}
	}
	for {
		candidate, ok := prompt(comment)
		if !ok {
			return "", Outcome{Result: ResultFailure, Message: "passphrase prompt cancelled"}
		}
		if _, err := ssh.ParsePrivateKeyWithPassphrase(fileBytes, []byte(candidate)); err == nil {
			return candidate, Outcome{Result: ResultOK}
		}
	}
}

func buildSSH2AddRequest(fileBytes []byte, comment string) []byte {
	w := wire.NewWriter()
	w.String(fileBytes)
	w.String([]byte(comment))
	return append([]byte{agentproto.SSH2AgentcAddIdentity}, w.Bytes()...)
}

// commentFromPEM extracts the OpenSSH private-key comment field, mirroring
// tailscale-tskagent/tskagent.go's parseComment byte-layout walk.
func commentFromPEM(fileBytes []byte) string {
	block, _ := pem.Decode(fileBytes)
	if block == nil {
		return ""
	}
	_, keys, ok := bytes.Cut(block.Bytes, []byte("\x00\x00\x00\x01"))
	if !ok || len(keys) < 4 {
		return ""
	}
	pubLen := int(binary.BigEndian.Uint32(keys))
	if 4+pubLen > len(keys) {
		return ""
	}
	keys = keys[4+pubLen:]
	if len(keys) < 4 {
		return ""
	}
	privLen := int(binary.BigEndian.Uint32(keys))
	if 4+privLen > len(keys) {
		return ""
	}
	keys = keys[4 : 4+privLen]
	if len(keys) < 8 {
		return ""
	}
	// Skip the two check-ints.
	keys = keys[8:]
	// The remaining layout is algorithm-specific (key type, then its
	// public/private fields); walk generically by reading every
	// length-prefixed field and keeping the last one, since the OpenSSH
	// format always places the comment last.
	return lastStringField(keys)
}

func lastStringField(b []byte) string {
	r := wire.NewReader(b)
	last := ""
	for {
		if len(r.Remaining()) < 4 {
			break
		}
		s := r.String()
		if r.Err() != nil {
			break
		}
		last = string(s)
	}
	return last
}

// identityEntry is one parsed (public_blob, comment) pair from an
// IDENTITIES_ANSWER response, used by alreadyLoaded and Enumerate.
type identityEntry struct {
	PublicBlob []byte
	Comment    string
	Fingerprint string
}

// parseIdentityAnswer parses an SSH1_AGENT_RSA_IDENTITIES_ANSWER or
// SSH2_AGENT_IDENTITIES_ANSWER body (spec.md §4.1's Enumerate wire format)
// back into entries — the client-side mirror of keystore.Store.Enumerate.
func parseIdentityAnswer(resp []byte, version int) ([]identityEntry, error) {
	if len(resp) < 1 {
		return nil, errors.New("empty identities response")
	}
	wantType := byte(agentproto.SSH2AgentIdentitiesAnswer)
	if version == 1 {
		wantType = agentproto.SSH1AgentRSAIdentitiesAnswer
	}
	if resp[0] != wantType {
		return nil, fmt.Errorf("unexpected identities response type %d", resp[0])
	}
	r := wire.NewReader(resp[1:])
	count := r.Uint32()
	entries := make([]identityEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var blob []byte
		if version == 1 {
			pub := cryptoprovider.ParseSSH1PublicKeyNoLength(r)
			blob = pub.PublicBlob()
		} else {
			blob = r.String()
		}
		comment := r.String()
		if r.Err() != nil {
			return nil, errors.New("malformed identities list")
		}
		entries = append(entries, identityEntry{
			PublicBlob:  blob,
			Comment:     string(comment),
			Fingerprint: fingerprint(blob),
		})
	}
	return entries, nil
}

func fingerprint(blob []byte) string {
	sum := sha256.Sum256(blob)
	return "SHA256:" + fmt.Sprintf("%x", sum[:])
}

// EnumerateCallback is invoked once per key by Enumerate.
type EnumerateCallback func(fingerprint, comment string, publicBlob []byte)

// Enumerate implements spec.md §4.5's enumeration helper: walk both key
// lists via the wire protocol, invoking cb per key. A parse error
// anywhere aborts with an error.
func (l *Loader) Enumerate(cb EnumerateCallback) error {
	for _, version := range []int{1, 2} {
		reqType := byte(agentproto.SSH2AgentcRequestIdentities)
		if version == 1 {
			reqType = agentproto.SSH1AgentcRequestRSAIdentities
		}
		resp := l.Agent.Submit([]byte{reqType})
		entries, err := parseIdentityAnswer(resp, version)
		if err != nil {
			return err
		}
		for _, e := range entries {
			cb(e.Fingerprint, e.Comment, e.PublicBlob)
		}
	}
	return nil
}
