package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/sumedhnvda/GM-uni/internal/v1/types"
)

// Wire envelopes for both real-time protocols. Everything is JSON; the
// server routes on the "type" field for chat and on payload shape for the
// live stream.

// --- Chat: client to server ---

// ChatSend is the only envelope the chat client transmits.
type ChatSend struct {
	Type        string             `json:"type"` // always "message"
	Content     string             `json:"content"`
	MessageType types.MessageType  `json:"message_type"`
	ClientID    types.ClientIDType `json:"client_id"`
	MediaURL    string             `json:"media_url,omitempty"`
}

// NewChatSend builds the outbound chat envelope.
func NewChatSend(content string, msgType types.MessageType, clientID types.ClientIDType, mediaURL string) ChatSend {
	return ChatSend{
		Type:        "message",
		Content:     content,
		MessageType: msgType,
		ClientID:    clientID,
		MediaURL:    mediaURL,
	}
}

// --- Chat: server to client ---

// ChatEvent is the tagged union of everything the chat stream can deliver.
// Dispatch over it with a type switch; DecodeChatEvent guarantees one of
// the concrete variants below or an error.
type ChatEvent interface {
	isChatEvent()
}

// NewMessageEvent carries a freshly broadcast chat message.
type NewMessageEvent struct {
	Message types.ChatMessage
}

// UserJoinedEvent announces a member joining the room.
type UserJoinedEvent struct {
	Name    string
	Picture string
}

// UserLeftEvent announces a member leaving the room.
type UserLeftEvent struct {
	Name string
}

// MessageDeletedEvent instructs the client to redact a message in place.
type MessageDeletedEvent struct {
	MessageID string
}

// ModerationWarningEvent reports a rejected message. ClientID is empty when
// the server cannot correlate the rejection to a specific send.
type ModerationWarningEvent struct {
	Reason   string
	ClientID types.ClientIDType
}

func (NewMessageEvent) isChatEvent()        {}
func (UserJoinedEvent) isChatEvent()        {}
func (UserLeftEvent) isChatEvent()          {}
func (MessageDeletedEvent) isChatEvent()    {}
func (ModerationWarningEvent) isChatEvent() {}

// UnknownEventError reports a server event type this client does not
// understand. Callers log and continue; an unknown event never tears down
// the stream.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// chatFrame is the superset wire shape for chat stream events. The message
// field is raw because it holds a ChatMessage object on new_message frames
// and a plain reason string on moderation_warning frames.
type chatFrame struct {
	Type        string             `json:"type"`
	Message     json.RawMessage    `json:"message,omitempty"`
	MessageID   string             `json:"message_id,omitempty"`
	UserName    string             `json:"user_name,omitempty"`
	UserPicture string             `json:"user_picture,omitempty"`
	ClientID    types.ClientIDType `json:"client_id,omitempty"`
}

// DecodeChatEvent parses a raw chat frame into its event variant.
func DecodeChatEvent(data []byte) (ChatEvent, error) {
	var frame chatFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed chat frame: %w", err)
	}

	switch frame.Type {
	case "new_message":
		if len(frame.Message) == 0 {
			return nil, fmt.Errorf("new_message frame missing message body")
		}
		var msg types.ChatMessage
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			return nil, fmt.Errorf("malformed new_message body: %w", err)
		}
		// The correlation id may ride the frame instead of the message
		if msg.ClientID == "" {
			msg.ClientID = frame.ClientID
		}
		return NewMessageEvent{Message: msg}, nil
	case "user_joined":
		return UserJoinedEvent{Name: frame.UserName, Picture: frame.UserPicture}, nil
	case "user_left":
		return UserLeftEvent{Name: frame.UserName}, nil
	case "message_deleted":
		if frame.MessageID == "" {
			return nil, fmt.Errorf("message_deleted frame missing message_id")
		}
		return MessageDeletedEvent{MessageID: frame.MessageID}, nil
	case "moderation_warning":
		var reason string
		if len(frame.Message) > 0 {
			_ = json.Unmarshal(frame.Message, &reason)
		}
		return ModerationWarningEvent{Reason: reason, ClientID: frame.ClientID}, nil
	default:
		return nil, &UnknownEventError{Type: frame.Type}
	}
}

// --- Live stream: client to server ---

// MediaChunk is one base64-encoded capture unit with its MIME type.
type MediaChunk struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// RealtimeInput wraps media chunks in the upstream envelope the live
// session expects.
type RealtimeInput struct {
	Input realtimeInputBody `json:"realtime_input"`
}

type realtimeInputBody struct {
	MediaChunks []MediaChunk `json:"media_chunks"`
}

// NewRealtimeInput builds the upstream media envelope.
func NewRealtimeInput(chunks ...MediaChunk) RealtimeInput {
	return RealtimeInput{Input: realtimeInputBody{MediaChunks: chunks}}
}

// EndSession asks the server to close out the live session.
type EndSession struct {
	Type string `json:"type"` // always "end_session"
}

// NewEndSession builds the end-of-session envelope.
func NewEndSession() EndSession {
	return EndSession{Type: "end_session"}
}

// --- Live stream: server to client ---

// LiveEvent is the tagged union of live-session downstream frames.
type LiveEvent interface {
	isLiveEvent()
}

// AudioEvent carries a base64-encoded PCM chunk for playback.
type AudioEvent struct {
	Audio string
}

// SessionEndedEvent confirms the server has finished the session.
type SessionEndedEvent struct{}

func (AudioEvent) isLiveEvent()        {}
func (SessionEndedEvent) isLiveEvent() {}

type liveFrame struct {
	Type  string `json:"type,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// DecodeLiveEvent parses a raw live-session frame into its event variant.
func DecodeLiveEvent(data []byte) (LiveEvent, error) {
	var frame liveFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed live frame: %w", err)
	}

	switch {
	case frame.Type == "session_ended":
		return SessionEndedEvent{}, nil
	case frame.Audio != "":
		return AudioEvent{Audio: frame.Audio}, nil
	default:
		return nil, &UnknownEventError{Type: frame.Type}
	}
}
