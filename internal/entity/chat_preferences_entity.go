package entity

const (
	ModelTierFast = "fast"
	ModelTierPro  = "pro"

	ThinkingOff  = "off"
	ThinkingLow  = "low"
	ThinkingHigh = "high"
)

type ChatPreferences struct {
	ModelTier       string `json:"modelTier"`
	ThinkingEffort  string `json:"thinkingEffort"`
	SearchEnabled   bool   `json:"searchEnabled"`
	MaxOutputTokens int32  `json:"maxOutputTokens,omitempty"`
}

func DefaultChatPreferences() ChatPreferences {
	return ChatPreferences{
		ModelTier:      ModelTierFast,
		ThinkingEffort: ThinkingOff,
		SearchEnabled:  false,
	}
}
