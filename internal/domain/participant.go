package domain

// Participant identity is provider-issued; Online is only ever set from a
// live presence event or a snapshot refresh, never inferred.
type Participant struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"image,omitempty"`
	Online    bool   `json:"online"`
}
