package sshlogin

import (
	"crypto/rand"

	"github.com/kryptco/sshkeyd/internal/config"
	"github.com/kryptco/sshkeyd/internal/wire"
)

// sendPassword implements spec.md §4.6's three password send strategies,
// selected by the server's bug-compatibility flags, ported byte-for-byte
// from original_source/ssh1login.c's camouflage/padded/plain branches.
func sendPassword(t PacketTransport, pwpktType byte, password string, bugs config.RemoteBug) error {
	switch {
	case bugs&(config.BugChokesOnSSH1Ignore|config.BugNeedsSSH1PlainPassword) == 0:
		return sendCamouflagedPassword(t, pwpktType, password)
	case bugs&config.BugNeedsSSH1PlainPassword == 0:
		return sendPaddedPassword(t, pwpktType, password)
	default:
		return sendPlainPassword(t, pwpktType, password)
	}
}

// sendCamouflagedPassword is the primary defence (spec.md §8's round-trip
// law and Scenario F): send one packet per string length in [bottom,top],
// in ascending order, where [bottom,top] covers the password's own length
// and is either [0,15] or [N,N+7] with N = len & ~7. The one packet whose
// length equals len(password) carries the real password as pwpktType; the
// rest carry random bytes as MSG_IGNORE.
func sendCamouflagedPassword(t PacketTransport, pwpktType byte, password string) error {
	bottom, top := camouflageRange(len(password))
	for i := bottom; i <= top; i++ {
		if i == len(password) {
			if err := t.Send(pwpktType, wire.NewWriter().String([]byte(password)).Bytes()); err != nil {
				return err
			}
			continue
		}
		filler := make([]byte, i)
		if _, err := rand.Read(filler); err != nil {
			return err
		}
		if err := t.Send(msgIgnore, wire.NewWriter().String(filler).Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// camouflageRange computes the [bottom, top] packet-length range for a
// password of the given length, per spec.md §4.6's "Password" rule.
func camouflageRange(pwlen int) (bottom, top int) {
	if pwlen < 16 {
		return 0, 15
	}
	bottom = pwlen &^ 7
	return bottom, bottom + 7
}

// sendPaddedPassword is the secondary defence for servers that choke on
// MSG_IGNORE but tolerate a NUL-padded string: password, a NUL terminator,
// then random bytes until the total string length is a multiple of 64.
func sendPaddedPassword(t PacketTransport, pwpktType byte, password string) error {
	padded := append([]byte(password), 0)
	for len(padded)%64 != 0 {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return err
		}
		padded = append(padded, b[0])
	}
	return t.Send(pwpktType, wire.NewWriter().String(padded).Bytes())
}

// sendPlainPassword is the last-resort strategy for servers believed
// unable to cope with either camouflage defence: the bare password,
// unpadded.
func sendPlainPassword(t PacketTransport, pwpktType byte, password string) error {
	return t.Send(pwpktType, wire.NewWriter().String([]byte(password)).Bytes())
}
