// Command sshkey-add is the CLI front-end driving C5 (KeyLoader) against
// a running sshkeyd's Unix socket, the same single-purpose, flag-driven
// shape kryptco-kr/kr/kr.go's subcommands use for one file path worth of
// work — except this repo's go.mod drops urfave/cli (see DESIGN.md), so
// flag parsing uses the standard library.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/kryptco/sshkeyd/internal/config"
	"github.com/kryptco/sshkeyd/internal/keyloader"
	"github.com/kryptco/sshkeyd/internal/passphrase"
	"github.com/kryptco/sshkeyd/internal/uiprompt"
)

const agentSocketFilename = "sshkeyd-agent.sock"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [key-file ...]\n", os.Args[0])
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		files = []string{filepath.Join(home, ".ssh", "id_rsa")}
	}

	stateDir, err := config.StateDir(".sshkeyd")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conn, err := net.Dial("unix", filepath.Join(stateDir, agentSocketFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not reach sshkeyd:", err)
		os.Exit(1)
	}
	defer conn.Close()

	cache := passphrase.New(0)
	loader := keyloader.New(keyloader.RemoteAgent{Conn: conn}, cache)

	status := 0
	for _, path := range files {
		if err := addOne(loader, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, uiprompt.Red(err.Error()))
			status = 1
		}
	}

	// Once every file on the command line has been processed, this
	// process's copy of whatever passphrases it collected is no longer
	// useful — forget them rather than holding them for the rest of the
	// process's lifetime (spec.md §3's passphrase cache, matching
	// original_source/pageant.c's pageant_forget_passphrases after a
	// batch of command-line key files).
	cache.Forget()

	os.Exit(status)
}

func addOne(loader *keyloader.Loader, path string) error {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	outcome := loader.Load(fileBytes, "", promptPassphrase)
	switch outcome.Result {
	case keyloader.ResultOK:
		fmt.Println(uiprompt.Green(fmt.Sprintf("Identity added: %s", path)))
		return nil
	case keyloader.ResultNeedPassphrase:
		return fmt.Errorf("passphrase required for %s", outcome.Comment)
	default:
		return fmt.Errorf("%s", outcome.Message)
	}
}

// promptPassphrase reads a passphrase from the controlling terminal with
// echo disabled, following the other_examples/ portsmith reference's use
// of golang.org/x/term for the same purpose.
func promptPassphrase(comment string) (string, bool) {
	fmt.Printf("Enter passphrase for %s: ", comment)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", false
	}
	return string(b), true
}
