package cryptoprovider

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSH2Identity pairs a parsed SSH-2 public key with its signer (when the
// private half is loaded) and the algorithm's supported sign-flags mask —
// the "alg private" handle named in spec.md §3.
type SSH2Identity struct {
	Public        ssh.PublicKey
	Signer        ssh.Signer // nil if only the public half is known
	SupportedFlags agent.SignatureFlags
}

// supportedFlagsFor returns the sign-flags mask an algorithm honors.
// Only RSA keys support the SHA-2 variants defined by [PROTOCOL.agent];
// every other algorithm's mask is zero, per spec.md's "supported-flags
// mask" glossary entry.
func supportedFlagsFor(keyType string) agent.SignatureFlags {
	if keyType == ssh.KeyAlgoRSA {
		return agent.SignatureFlagRsaSha256 | agent.SignatureFlagRsaSha512
	}
	return 0
}

// ParseSSH2PrivateKey parses an OpenSSH-style private key blob (as found in
// an SSH2_AGENTC_ADD_IDENTITY body) into a signer.
func ParseSSH2PrivateKey(der []byte) (ssh.Signer, error) {
	return ssh.ParsePrivateKey(der)
}

// ParseSSH2PublicKey parses a length-prefixed SSH-2 public key blob.
func ParseSSH2PublicKey(blob []byte) (ssh.PublicKey, error) {
	return ssh.ParsePublicKey(blob)
}

// NewSSH2Identity builds an identity record for a freshly-parsed signer.
func NewSSH2Identity(signer ssh.Signer) SSH2Identity {
	pub := signer.PublicKey()
	return SSH2Identity{
		Public:         pub,
		Signer:         signer,
		SupportedFlags: supportedFlagsFor(pub.Type()),
	}
}

// Sign rejects any flag bit the algorithm does not support before
// delegating to the signer — spec.md §4.2's SSH-2 sign error rule and
// testable property 6.
func (id SSH2Identity) Sign(flags agent.SignatureFlags, data []byte) (*ssh.Signature, error) {
	if id.Signer == nil {
		return nil, errors.New("no private key loaded for this identity")
	}
	if flags&^id.SupportedFlags != 0 {
		return nil, errors.New("unsupported signature flag bits")
	}
	if algSigner, ok := id.Signer.(ssh.AlgorithmSigner); ok && flags != 0 {
		algo := ssh.KeyAlgoRSA
		if flags&agent.SignatureFlagRsaSha512 != 0 {
			algo = ssh.KeyAlgoRSASHA512
		} else if flags&agent.SignatureFlagRsaSha256 != 0 {
			algo = ssh.KeyAlgoRSASHA256
		}
		return algSigner.SignWithAlgorithm(rand.Reader, data, algo)
	}
	return id.Signer.Sign(rand.Reader, data)
}
