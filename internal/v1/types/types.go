package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// --- Core Domain Types ---

// MessageType distinguishes the payload kind of a chat message.
type MessageType string

// RoomIDType represents a unique identifier for a community chat room.
type RoomIDType string

// ClientIDType is a client-generated correlation id threaded through an
// optimistic send and its server echo.
type ClientIDType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
)

// DeliveryStatus tracks a locally-originated message through confirmation.
type DeliveryStatus string

const (
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusError   DeliveryStatus = "error"
)

// DeletedPlaceholder replaces redacted message content in place.
const DeletedPlaceholder = "[Message deleted]"

// Media size ceilings, enforced client-side before any network call.
const (
	MaxImageBytes = 10 << 20 // 10 MB
	MaxVideoBytes = 50 << 20 // 50 MB
)

// ChatMessage is a community chat entry. Provisional entries carry a
// ClientID and StatusSending until the server echo promotes them in place.
type ChatMessage struct {
	ID          string         `json:"id"`
	UserEmail   string         `json:"user_email"`
	UserName    string         `json:"user_name"`
	UserPicture string         `json:"user_picture,omitempty"`
	Content     string         `json:"content"`
	MessageType MessageType    `json:"message_type"`
	MediaURL    string         `json:"media_url,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	IsOwn       bool           `json:"is_own,omitempty"`
	ClientID    ClientIDType   `json:"client_id,omitempty"`
	Status      DeliveryStatus `json:"status,omitempty"`
	IsDeleted   bool           `json:"is_deleted,omitempty"`
}

// RoomInfo describes the user's assigned community room. Immutable per
// session visit; refreshed only by a fresh fetch, never by the chat stream.
type RoomInfo struct {
	RoomID       RoomIDType `json:"room_id"`
	DisplayName  string     `json:"display_name"`
	MemberCount  int        `json:"member_count"`
	UserLocation string     `json:"user_location,omitempty"`
}

// ValidateChatContent ensures outbound text is safe to send.
func ValidateChatContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("chat content cannot be empty")
	}
	if len(content) > 1000 {
		return errors.New("chat content cannot exceed 1000 characters")
	}
	return nil
}

// MediaKindFromMIME maps a MIME type onto a message type, rejecting
// anything that is not image/* or video/*.
func MediaKindFromMIME(mimeType string) (MessageType, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MessageTypeImage, nil
	case strings.HasPrefix(mimeType, "video/"):
		return MessageTypeVideo, nil
	default:
		return "", fmt.Errorf("only images and videos are allowed (got %q)", mimeType)
	}
}

// ValidateMediaFile checks MIME type and kind-specific size ceilings.
func ValidateMediaFile(mimeType string, size int64) (MessageType, error) {
	kind, err := MediaKindFromMIME(mimeType)
	if err != nil {
		return "", err
	}
	limit := int64(MaxImageBytes)
	if kind == MessageTypeVideo {
		limit = MaxVideoBytes
	}
	if size > limit {
		return "", fmt.Errorf("file size too large (max %dMB)", limit>>20)
	}
	return kind, nil
}
