package graph

import "encoding/json"

// Estruturas do webhook de entrada da Cloud API
// (entry[].changes[].value.{messages,statuses}).

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []InboundMessage `json:"messages"`
	Statuses []MessageStatus  `json:"statuses"`
}

type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *Media `json:"image"`
	Audio    *Media `json:"audio"`
	Video    *Media `json:"video"`
	Document *Media `json:"document"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
}

type MessageStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // sent | delivered | read | failed
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

func ParseWebhook(body []byte) (WebhookPayload, error) {
	var p WebhookPayload
	err := json.Unmarshal(body, &p)
	return p, err
}

// Kind reduz o type da Meta aos tipos que o modelo de mensagem conhece.
func (m InboundMessage) Kind() string {
	switch m.Type {
	case "text", "image", "audio", "video", "document":
		return m.Type
	default:
		return "unsupported"
	}
}

// Content extrai o texto exibível da mensagem: corpo, caption ou um
// marcador sintético para tipos sem texto.
func (m InboundMessage) Content() string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	if media := m.MediaPart(); media != nil && media.Caption != "" {
		return media.Caption
	}
	switch m.Kind() {
	case "image":
		return "[imagem]"
	case "audio":
		return "[áudio]"
	case "video":
		return "[vídeo]"
	case "document":
		return "[documento]"
	case "text":
		return ""
	default:
		return "[" + m.Type + "]"
	}
}

// MediaPart devolve o bloco de mídia da mensagem, se houver.
func (m InboundMessage) MediaPart() *Media {
	switch {
	case m.Image != nil:
		return m.Image
	case m.Audio != nil:
		return m.Audio
	case m.Video != nil:
		return m.Video
	case m.Document != nil:
		return m.Document
	}
	return nil
}
