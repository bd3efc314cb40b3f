package chat

import "errors"

// Participant is a member of the conversation. Participants only ever come
// from the server.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Email     string `json:"email,omitempty"`
	Bio       string `json:"bio,omitempty"`
	JobTitle  string `json:"jobTitle,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Validate checks that the participant can be stored. An empty name is
// allowed here; renderers skip such participants.
func (p Participant) Validate() error {
	if p.ID == "" {
		return errors.New("participant id is required")
	}
	return nil
}
