package sshlogin

import (
	"errors"

	"github.com/kryptco/sshkeyd/internal/cryptoprovider"
	"github.com/kryptco/sshkeyd/internal/wire"
)

// Message type numbers from spec.md §6, matching the historical SSH-1
// wire protocol original_source/ssh1login.c speaks.
const (
	msgDisconnect        = 1
	smsgPublicKey        = 2
	cmsgSessionKey       = 3
	cmsgUser             = 4
	cmsgAuthRSA          = 6
	cmsgAuthPassword     = 9
	smsgSuccess          = 14
	smsgFailure          = 15
	smsgAuthRSAChallenge = 16
	cmsgAuthRSAResponse  = 19
	msgIgnore            = 32
	msgDebug             = 36
	cmsgRequestCompress  = 37
	cmsgAuthTIS          = 39
	cmsgAuthTISResponse  = 40
	smsgAuthTISChallenge = 34
	smsgAuthCCardChallenge = 70
	cmsgAuthCCard          = 70
	cmsgAuthCCardResponse  = 71
)

// PacketTransport is the packet protocol layer's view of the underlying
// BPP (binary packet protocol), which spec.md puts out of scope: framing
// of whole SSH packets, retransmission, and the record layer are assumed.
// sshlogin only needs to send/receive typed packets, force a synchronous
// flush, and swap in the negotiated bulk cipher.
type PacketTransport interface {
	Send(msgType byte, payload []byte) error
	Recv() (msgType byte, payload []byte, err error)
	Flush() error
	InstallCipher(c *cryptoprovider.BulkCipher)
}

// serverPublicKeyPacket is the parsed body of SMSG_PUBLIC_KEY.
type serverPublicKeyPacket struct {
	Cookie                [8]byte
	ServerKey             cryptoprovider.SSH1PublicKey
	HostKey               cryptoprovider.SSH1PublicKey
	ProtocolFlags         uint32
	SupportedCiphersMask  uint32
	SupportedAuthsMask    uint32
}

// parseServerPublicKeyPacket implements spec.md §4.6's AWAIT_PUBKEYS
// field extraction.
func parseServerPublicKeyPacket(payload []byte) (serverPublicKeyPacket, error) {
	r := wire.NewReader(payload)
	var pkt serverPublicKeyPacket
	copy(pkt.Cookie[:], r.Bytes(8))
	pkt.ServerKey = cryptoprovider.ParseSSH1PublicKeyNoLength(r)
	pkt.HostKey = cryptoprovider.ParseSSH1PublicKeyNoLength(r)
	pkt.ProtocolFlags = r.Uint32()
	pkt.SupportedCiphersMask = r.Uint32()
	pkt.SupportedAuthsMask = r.Uint32()
	if r.Err() != nil {
		return pkt, errors.New("bad SSH-1 public key packet")
	}
	return pkt, nil
}

// cipherMaskSupports reports whether the server's advertised cipher mask
// includes cipherType, per the classic "bit i set means cipher i is
// offered" SSH-1 convention.
func cipherMaskSupports(mask uint32, cipherType int) bool {
	return mask&(1<<uint(cipherType)) != 0
}

// authMaskSupports reports whether the server's advertised authentication
// mask includes the given SSH-1 auth type number.
func authMaskSupports(mask uint32, authType int) bool {
	return mask&(1<<uint(authType)) != 0
}

// SSH-1 authentication type numbers, used against supported_auths_mask.
const (
	authRSA      = 1
	authPassword = 3
	authTIS      = 5
	authCCard    = 16
)
