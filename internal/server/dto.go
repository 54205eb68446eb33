package server

import (
	"encoding/json"

	"TaskForce/internal/audit"
	"TaskForce/internal/game"
)

// helloMsg is the first text frame on a replication stream. The binary
// frames that follow carry variable batches.
type helloMsg struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	Client  string `json:"client"`
	Player  string `json:"player,omitempty"`
	Faction string `json:"faction"`
	Tick    uint64 `json:"tick"`
	Seq     uint64 `json:"seq"`
	Resumed bool   `json:"resumed"`
}

type chatMsg struct {
	Type string `json:"type"`
	game.ChatMessage
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type movePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type interactPayload struct {
	Hold string  `json:"hold"`
	Held float64 `json:"held"`
}

type healthDTO struct {
	Status   string   `json:"status"`
	Sessions []string `json:"sessions"`
}

type historyDTO struct {
	Session string        `json:"session"`
	Task    string        `json:"task"`
	Entries []audit.Entry `json:"entries"`
}

type errorDTO struct {
	Error string `json:"error"`
}
