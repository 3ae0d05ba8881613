package engine

import (
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
)

// AMDAction is the routing decision for an answering-machine-detection result.
type AMDAction int

const (
	// AMDConnectAI routes the call into the AI dialogue.
	AMDConnectAI AMDAction = iota
	// AMDPlayVoicemail plays the voicemail script and hangs up.
	AMDPlayVoicemail
	// AMDHangupFax hangs up immediately.
	AMDHangupFax
)

// RouteAMD is the pure AMD routing decision table. A not_sure result is
// treated as human, biasing toward connecting.
func RouteAMD(result model.AMDResult) AMDAction {
	switch result {
	case model.AMDMachine:
		return AMDPlayVoicemail
	case model.AMDFax:
		return AMDHangupFax
	default:
		// human, not_sure
		return AMDConnectAI
	}
}
