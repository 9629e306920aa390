//go:build tools
// +build tools

// Package tools pins the code generators run through go generate, such as
// mockgen for the mocks package.
package chat_delivery

import (
	_ "go.uber.org/mock/mockgen"
)
