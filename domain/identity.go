// Package domain contains the core concepts of the delivery system.
// This file defines the identities shared by every component.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// UserID is the identity supplied by the authentication layer, trusted as is.
type UserID string

// ConversationID identifies a conversation and the room broadcasting it.
type ConversationID string

// ConnectionID identifies one live network session.
type ConnectionID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.NewString())
}

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Valid rejects empty identities and those that would break key prefixes.
func (u UserID) Valid() bool {
	return u != "" && !strings.ContainsRune(string(u), ':')
}

// ValidReference applies the same rule to the post and comment ids owned by
// the CRUD layer, they are key prefixes too.
func ValidReference(id string) bool {
	return id != "" && !strings.ContainsRune(id, ':')
}

func (c ConversationID) Valid() bool {
	return uuid.Validate(string(c)) == nil
}
