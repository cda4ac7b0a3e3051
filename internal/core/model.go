package core

import "time"

// Platform identifies one of the supported chat sources.
type Platform string

const (
	PlatformTwitch  Platform = "Twitch"
	PlatformYouTube Platform = "YouTube"
	PlatformKick    Platform = "Kick"
)

// Platforms lists every supported platform in display order.
func Platforms() []Platform {
	return []Platform{PlatformTwitch, PlatformYouTube, PlatformKick}
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitch, PlatformYouTube, PlatformKick:
		return true
	}
	return false
}

// Key returns the lowercase wire identifier for the platform.
func (p Platform) Key() string {
	switch p {
	case PlatformTwitch:
		return "twitch"
	case PlatformYouTube:
		return "youtube"
	case PlatformKick:
		return "kick"
	}
	return "unknown"
}

// ChatMessage is the unified shape every source event is normalized into.
// Immutable after normalization; consumers only ever append copies.
type ChatMessage struct {
	ID       string         `json:"id"`
	Ts       time.Time      `json:"ts"`
	Platform Platform       `json:"platform"`
	Username string         `json:"username"`
	Text     string         `json:"message"`
	Badges   []string       `json:"badges"`
	Colour   *string        `json:"color"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// AdapterStatus tracks one adapter's connection lifecycle:
// idle -> connecting -> connected <-> reconnecting -> (stopped | failed).
type AdapterStatus string

const (
	StatusIdle         AdapterStatus = "idle"
	StatusConnecting   AdapterStatus = "connecting"
	StatusConnected    AdapterStatus = "connected"
	StatusReconnecting AdapterStatus = "reconnecting"
	StatusStopped      AdapterStatus = "stopped"
	StatusFailed       AdapterStatus = "failed"
)

// Terminal reports whether the status ends the adapter lifecycle.
// failed stays terminal until the owner explicitly restarts the adapter.
func (s AdapterStatus) Terminal() bool {
	return s == StatusStopped || s == StatusFailed
}

// StatusFrame is the non-chat half of the wire protocol. Type is either
// "connection" (viewer ack) or "<platform>-status" (adapter transitions).
type StatusFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`
}

// ConnectionAck is sent to every viewer immediately after subscribe.
func ConnectionAck() StatusFrame {
	return StatusFrame{Type: "connection", Message: "connected"}
}

// PlatformStatus builds the status frame for an adapter transition.
func PlatformStatus(p Platform, s AdapterStatus) StatusFrame {
	return StatusFrame{Type: p.Key() + "-status", Data: string(s)}
}
