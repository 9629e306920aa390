// Package domain contains core concepts of the delivery system.
// This file defines Message and its single content transition, the redaction.
package domain

import (
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindAudio MessageKind = "audio"
	KindFile  MessageKind = "file"
)

// RedactedText replaces the content of a message deleted for everyone.
const RedactedText = "This message was deleted"

const defaultMediaType = "application/octet-stream"

// FileDescriptor is supplied by file storage, bytes never go through here.
type FileDescriptor struct {
	Name      string `json:"fileName" validate:"required,max=255"`
	Size      int64  `json:"fileSize" validate:"gte=0"`
	MediaType string `json:"mimeType" validate:"max=255"`
	Path      string `json:"filePath" validate:"required"`
}

type ReadMarker struct {
	UserID UserID    `json:"user"`
	ReadAt time.Time `json:"readAt"`
}

type Message struct {
	ID                 uuid.UUID       `json:"id"`
	ConversationID     ConversationID  `json:"conversationId"`
	SenderID           UserID          `json:"senderId"`
	Kind               MessageKind     `json:"messageType"`
	Text               string          `json:"content"`
	File               *FileDescriptor `json:"file,omitempty"`
	Lang               string          `json:"lang,omitempty"`
	ReadBy             []ReadMarker    `json:"readBy"`
	HiddenFor          []UserID        `json:"-"`
	DeletedForEveryone bool            `json:"isDeleted"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// NewMessage builds a message whose kind follows the attached file, if any.
func NewMessage(conversationID ConversationID, senderID UserID, text string,
	file *FileDescriptor, at time.Time) Message {
	msg := Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindText,
		Text:           text,
		ReadBy:         []ReadMarker{},
		CreatedAt:      at,
	}
	if file != nil {
		f := *file
		f.MediaType = CanonicalMediaType(f.MediaType)
		msg.File = &f
		msg.Kind = KindOf(f.MediaType)
	}
	return msg
}

// CanonicalMediaType strips parameters and resolves aliases known by mimetype.
func CanonicalMediaType(mediaType string) string {
	base, _, _ := strings.Cut(mediaType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		return defaultMediaType
	}
	if m := mimetype.Lookup(base); m != nil {
		canonical, _, _ := strings.Cut(m.String(), ";")
		return canonical
	}
	return base
}

func KindOf(mediaType string) MessageKind {
	top, _, _ := strings.Cut(CanonicalMediaType(mediaType), "/")
	switch top {
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	default:
		return KindFile
	}
}

func (m Message) IsReadBy(userID UserID) bool {
	return lo.ContainsBy(m.ReadBy, func(r ReadMarker) bool { return r.UserID == userID })
}

func (m Message) IsHiddenFor(userID UserID) bool {
	return lo.Contains(m.HiddenFor, userID)
}

// CountsAsUnreadFor tells whether the message adds to userID's unread badge.
func (m Message) CountsAsUnreadFor(userID UserID) bool {
	return m.SenderID != userID && !m.IsReadBy(userID) && !m.IsHiddenFor(userID)
}

// MarkRead adds a read marker, only once per reader and never for the sender.
func (m *Message) MarkRead(userID UserID, at time.Time) bool {
	if m.SenderID == userID || m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadMarker{UserID: userID, ReadAt: at})
	return true
}

func (m *Message) HideFor(userID UserID) bool {
	if m.IsHiddenFor(userID) {
		return false
	}
	m.HiddenFor = append(m.HiddenFor, userID)
	return true
}

// Redact clears the content for good. The original text and file are dropped,
// there is no way back.
func (m *Message) Redact() bool {
	if m.DeletedForEveryone {
		return false
	}
	m.DeletedForEveryone = true
	m.Text = RedactedText
	m.File = nil
	m.Lang = ""
	return true
}
