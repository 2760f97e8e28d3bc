package server

import "github.com/ZehenForever/dpsmeter/internal/engine"

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	MessageDps   = "dps"
	MessageReset = "reset"
)

type ModeRequest struct {
	Mode   string `json:"mode"`
	Legacy string `json:"legacy,omitempty"`
	// Window sizes in seconds. Nil leaves the current value.
	LastHitWindowSec    *int `json:"lastHitWindowSec,omitempty"`
	AllTargetsWindowSec *int `json:"allTargetsWindowSec,omitempty"`
}

type IdentityRequest struct {
	CharacterName *string `json:"characterName,omitempty"`
	ActorID       *int    `json:"actorId,omitempty"`
}

type IdentityResponse struct {
	CharacterName string `json:"characterName"`
	PlayerID      int    `json:"playerId"`
}

// Settings is reported to Options.OnSettings after each accepted change.
type Settings struct {
	Mode          engine.Mode
	Legacy        engine.LegacyMode
	CharacterName string
	ActorID       int
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
