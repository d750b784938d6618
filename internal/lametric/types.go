package lametric

// Endpoints is the endpoint map reported by GET /api/v2. It is resolved
// once per client and never refreshed; construct a new client to
// re-discover.
type Endpoints struct {
	BaseURL    string
	APIVersion string
	Endpoints  map[string]string
}

// Notification is the payload for POST notifications.
type Notification struct {
	Priority string `json:"priority,omitempty"`
	IconType string `json:"icon_type,omitempty"`
	Model    Model  `json:"model"`
}

// Model holds the frames and optional sound of a notification.
type Model struct {
	Cycles int     `json:"cycles"`
	Frames []Frame `json:"frames"`
	Sound  *Sound  `json:"sound,omitempty"`
}

// Frame is a single display frame. Duration is in milliseconds; zero
// means device default.
type Frame struct {
	Icon     string `json:"icon,omitempty"`
	Text     string `json:"text"`
	Duration int    `json:"duration,omitempty"`
}

// Sound references an audio resource played with the notification.
type Sound struct {
	URL      string         `json:"url"`
	Type     string         `json:"type"`
	Fallback *SoundFallback `json:"fallback,omitempty"`
}

// SoundFallback is the built-in sound the device plays when it cannot
// fetch Sound.URL.
type SoundFallback struct {
	Category string `json:"category"`
	ID       string `json:"id"`
}

// DefaultSoundFallback returns the stock fallback used for mp3 notifications.
func DefaultSoundFallback() *SoundFallback {
	return &SoundFallback{Category: "notifications", ID: "cat"}
}
