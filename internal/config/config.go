// Package config loads the configuration keys spec.md §6 names: cipher
// preference order, keyfile path, try-agent/TIS/CryptoCard flags, a remote
// user override, the compression flag, and the remote-bug bitmask, plus
// the per-user state directory the daemon's socket and logs live under.
package config

import (
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"
)

// RemoteBug bits, named after the server bug-compatibility flags
// original_source/ssh1login.c branches the password-send strategy on
// (spec.md §4.6 "Password").
type RemoteBug uint32

const (
	BugChokesOnSSH1Ignore RemoteBug = 1 << iota
	BugNeedsSSH1PlainPassword
)

// Cipher is the user's named cipher preference, including the WARN
// sentinel spec.md §4.6 treats specially.
type Cipher string

const (
	CipherWarn     Cipher = "WARN"
	Cipher3DES     Cipher = "3des"
	CipherBlowfish Cipher = "blowfish"
	CipherDES      Cipher = "des"
	CipherAES      Cipher = "aes"
)

// Config mirrors kryptco-kr/config.go's flat, JSON-persisted settings
// struct, extended with the SSH-1 login fields spec.md §6 requires.
type Config struct {
	CipherPreference []Cipher  `json:"cipher_preference"`
	KeyFilePath      string    `json:"key_file_path"`
	TryAgent         bool      `json:"try_agent"`
	TryTIS           bool      `json:"try_tis"`
	TryCryptoCard    bool      `json:"try_cryptocard"`
	RemoteUser       string    `json:"remote_user"`
	EnableCompression bool     `json:"enable_compression"`
	RemoteBugMask    RemoteBug `json:"remote_bug_mask"`
	AgentIsLocal     bool      `json:"agent_is_local"`

	// ManualHostKeys holds operator-pinned host key fingerprints
	// ("SHA256:<hex>" of the host key's public blob). nil means host-key
	// trust is unconfigured and falls through to the interactive dialog;
	// a non-nil (possibly empty) slice means configured, so an
	// unrecognized host key is a fatal mismatch rather than a prompt
	// (spec.md §4.6's three host-key verification outcomes).
	ManualHostKeys []string `json:"manual_host_keys,omitempty"`
}

// Default returns the configuration the daemon and login machine use
// absent an on-disk override.
func Default() Config {
	return Config{
		CipherPreference: []Cipher{CipherWarn, Cipher3DES, CipherBlowfish, CipherDES},
		TryAgent:         true,
		TryTIS:           true,
		TryCryptoCard:    true,
		AgentIsLocal:     true,
	}
}

// StateDir resolves the per-user directory the daemon stores its socket
// and logs in, following kryptco-kr/config.go's KrDirFile: prefer
// $SUDO_USER's home directory so a sudo-invoked client still reaches the
// same directory as the user's own daemon, falling back to $HOME.
func StateDir(dirName string) (string, error) {
	userName := os.Getenv("SUDO_USER")
	if userName == "" {
		userName = os.Getenv("USER")
	}
	var home string
	if u, err := user.Lookup(userName); err == nil && u != nil {
		home = u.HomeDir
	} else {
		home = os.Getenv("HOME")
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads a JSON config file if present, overlaying it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
