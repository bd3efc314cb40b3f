package remote

import "github.com/zhouzirui/chatsync/internal/model/chat"

// Wire shapes of the chat server's JSON. They are converted to model types
// at the boundary so nothing past this package sees them.

type infoJSON struct {
	SessionUUID string `json:"sessionUuid"`
}

type attachmentJSON struct {
	UUID   string `json:"uuid"`
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type reactionJSON struct {
	UUID            string `json:"uuid"`
	ParticipantUUID string `json:"participantUuid"`
	Value           string `json:"value"`
}

type messageJSON struct {
	UUID        string           `json:"uuid"`
	Text        string           `json:"text"`
	AuthorUUID  string           `json:"authorUuid"`
	SentAt      int64            `json:"sentAt"`
	UpdatedAt   int64            `json:"updatedAt"`
	Reactions   []reactionJSON   `json:"reactions,omitempty"`
	Attachments []attachmentJSON `json:"attachments"`
	// The server embeds the whole replied-to message; only its id is kept.
	ReplyToMessage *messageJSON `json:"replyToMessage,omitempty"`
}

type participantJSON struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Email     string `json:"email"`
	Bio       string `json:"bio"`
	JobTitle  string `json:"jobTitle"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

type newMessageJSON struct {
	Text string `json:"text"`
}

func (m messageJSON) toModel() chat.Message {
	out := chat.Message{
		ID:        m.UUID,
		Text:      m.Text,
		AuthorID:  m.AuthorUUID,
		SentAt:    m.SentAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Reactions) > 0 {
		out.Reactions = make([]chat.Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			out.Reactions[i] = chat.Reaction{ID: r.UUID, ParticipantID: r.ParticipantUUID, Value: r.Value}
		}
	}
	if len(m.Attachments) > 0 {
		out.Attachments = make([]chat.Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			out.Attachments[i] = chat.Attachment{ID: a.UUID, Type: a.Type, URL: a.URL, Width: a.Width, Height: a.Height}
		}
	}
	if m.ReplyToMessage != nil {
		out.ReplyToID = m.ReplyToMessage.UUID
	}
	return out
}

func (p participantJSON) toModel() chat.Participant {
	return chat.Participant{
		ID:        p.UUID,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Email:     p.Email,
		Bio:       p.Bio,
		JobTitle:  p.JobTitle,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// MessageToWire converts a model message to the server's JSON shape. The
// dummy server uses it to speak the same format the client decodes.
func MessageToWire(m chat.Message, replyTo *chat.Message) any {
	return messageToJSON(m, replyTo)
}

// ParticipantToWire converts a model participant to the server's JSON shape.
func ParticipantToWire(p chat.Participant) any {
	return participantJSON{
		UUID:      p.ID,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Email:     p.Email,
		Bio:       p.Bio,
		JobTitle:  p.JobTitle,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// InfoToWire builds the /info response body.
func InfoToWire(marker chat.SessionMarker) any {
	return infoJSON{SessionUUID: marker.String()}
}

func messageToJSON(m chat.Message, replyTo *chat.Message) messageJSON {
	out := messageJSON{
		UUID:        m.ID,
		Text:        m.Text,
		AuthorUUID:  m.AuthorID,
		SentAt:      m.SentAt,
		UpdatedAt:   m.UpdatedAt,
		Attachments: make([]attachmentJSON, 0, len(m.Attachments)),
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, reactionJSON{UUID: r.ID, ParticipantUUID: r.ParticipantID, Value: r.Value})
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, attachmentJSON{UUID: a.ID, Type: a.Type, URL: a.URL, Width: a.Width, Height: a.Height})
	}
	if replyTo != nil {
		embedded := messageToJSON(*replyTo, nil)
		out.ReplyToMessage = &embedded
	}
	return out
}
