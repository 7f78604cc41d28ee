// Package agentproto implements C2, the AgentRequestHandler: it decodes
// one framed agent request and produces one framed response, per spec.md
// §4.2. Message numbering matches the classic agent wire protocol (the
// same numbering original_source/pageant.c's pageant_handle_msg switches
// on).
package agentproto

const (
	SSH1AgentcRequestRSAIdentities     = 1
	SSH1AgentRSAIdentitiesAnswer       = 2
	SSH1AgentcRSAChallenge             = 3
	SSH1AgentRSAResponse               = 4
	SSHAgentFailure                    = 5
	SSHAgentSuccess                    = 6
	SSH1AgentcAddRSAIdentity           = 7
	SSH1AgentcRemoveRSAIdentity        = 8
	SSH1AgentcRemoveAllRSAIdentities   = 9
	SSH2AgentcRequestIdentities        = 11
	SSH2AgentIdentitiesAnswer          = 12
	SSH2AgentcSignRequest              = 13
	SSH2AgentSignResponse              = 14
	SSH2AgentcAddIdentity              = 17
	SSH2AgentcRemoveIdentity           = 18
	SSH2AgentcRemoveAllIdentities      = 19
)

// sshAgentRSAChallengeResponseType is the only response_type value the
// SSH-1 challenge request (type 3) accepts (spec.md §4.2).
const sshAgentRSAChallengeResponseType = 1
