package telegram

// Update is an incoming webhook update. Only message updates are used.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// PhotoSize is one resolution of a sent photo.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int    `json:"file_size,omitempty"`
}

// Message is a chat message.
type Message struct {
	MessageID      int64       `json:"message_id"`
	Chat           Chat        `json:"chat"`
	Text           string      `json:"text,omitempty"`
	Caption        string      `json:"caption,omitempty"`
	Photo          []PhotoSize `json:"photo,omitempty"`
	ReplyToMessage *Message    `json:"reply_to_message,omitempty"`
}

// HasPhoto reports whether the message carries a photo.
func (m *Message) HasPhoto() bool {
	return m != nil && len(m.Photo) > 0
}

// InputMediaPhoto is one element of a media group.
type InputMediaPhoto struct {
	Type  string `json:"type"`
	Media string `json:"media"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

type sendMessageRequest struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type sendPhotoRequest struct {
	ChatID           int64  `json:"chat_id"`
	Photo            string `json:"photo"`
	Caption          string `json:"caption,omitempty"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

// sendMediaGroupRequest carries media as a JSON-encoded array string.
type sendMediaGroupRequest struct {
	ChatID           int64  `json:"chat_id"`
	Media            string `json:"media"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type setWebhookRequest struct {
	URL         string `json:"url"`
	SecretToken string `json:"secret_token,omitempty"`
}
