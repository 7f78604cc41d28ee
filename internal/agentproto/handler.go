package agentproto

import (
	"sync"

	"github.com/op/go-logging"

	"github.com/kryptco/sshkeyd/internal/keystore"
)

// KeyListUpdater is notified, fire-and-forget, whenever a key is added —
// the "notify the UI layer via keylist_update()" rule in spec.md §4.2.
type KeyListUpdater interface {
	KeyListUpdate()
}

// Handler is C2. One Handler instance is shared by every client
// connection through a single KeyStore. Each connection is served on its
// own goroutine, so Handle holds mu for the whole request: requests from
// all clients are processed one at a time and KeyStore mutations happen
// in a single total order.
type Handler struct {
	Store   *keystore.Store
	Log     *logging.Logger
	Updater KeyListUpdater // may be nil

	mu sync.Mutex
}

// ClientState is the per-connection flag set referenced by the handler —
// currently just the suppress-logging bit (spec.md §4.2).
type ClientState struct {
	SuppressLogging bool
}

// Handle decodes one framed request body (type byte + payload) and
// returns one framed response body (type byte + payload), never an error:
// every failure mode collapses to the single-byte SSH_AGENT_FAILURE
// response, per spec.md §4.2's error rule.
func (h *Handler) Handle(cs *ClientState, req []byte) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(req) < 1 {
		h.logType("malformed: empty request")
		return failure()
	}
	msgType := req[0]
	body := req[1:]

	switch msgType {
	case SSH1AgentcRequestRSAIdentities:
		return h.handleSSH1RequestIdentities(cs)
	case SSH1AgentcRSAChallenge:
		return h.handleSSH1Challenge(cs, body)
	case SSH1AgentcAddRSAIdentity:
		return h.handleSSH1AddIdentity(cs, body)
	case SSH1AgentcRemoveRSAIdentity:
		return h.handleSSH1RemoveIdentity(cs, body)
	case SSH1AgentcRemoveAllRSAIdentities:
		h.Store.RemoveAll(1)
		h.logType("remove_all v1")
		return success()
	case SSH2AgentcRequestIdentities:
		return h.handleSSH2RequestIdentities(cs)
	case SSH2AgentcSignRequest:
		return h.handleSSH2Sign(cs, body)
	case SSH2AgentcAddIdentity:
		return h.handleSSH2AddIdentity(cs, body)
	case SSH2AgentcRemoveIdentity:
		return h.handleSSH2RemoveIdentity(cs, body)
	case SSH2AgentcRemoveAllIdentities:
		h.Store.RemoveAll(2)
		h.logType("remove_all v2")
		return success()
	default:
		h.logType("unknown message type")
		return failure()
	}
}

func failure() []byte { return []byte{SSHAgentFailure} }
func success() []byte { return []byte{SSHAgentSuccess} }

func (h *Handler) logType(msg string) {
	if h.Log != nil {
		h.Log.Debug(msg)
	}
}

// logDetail logs fingerprint/comment-bearing detail unless the client has
// requested suppression (spec.md §4.2's suppress-logging flag).
func (h *Handler) logDetail(cs *ClientState, msg string) {
	if h.Log == nil {
		return
	}
	if cs != nil && cs.SuppressLogging {
		return
	}
	h.Log.Debug(msg)
}

func (h *Handler) notifyKeyListUpdate() {
	if h.Updater != nil {
		h.Updater.KeyListUpdate()
	}
}

// defaultComment applies pageant.c's fallback: an empty client-proposed
// comment is replaced with a generic label rather than stored as "".
func defaultComment(proposed string, fallback string) string {
	if proposed != "" {
		return proposed
	}
	return fallback
}
