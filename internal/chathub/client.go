package chathub

import "gopherchat/backend/internal/models"

// Client is the interface for one live chat connection. It abstracts the
// transport so the hub can manage real WebSocket connections and test
// doubles uniformly.
type Client interface {
	// GetUserID returns the identity this connection is bound to.
	GetUserID() string
	// GetUsername returns the display name resolved at upgrade time.
	GetUsername() string

	// GetSendChannel returns the channel the hub writes outbound frames to.
	GetSendChannel() chan<- models.WSMessage

	// Run starts the read and write pumps.
	Run()
	// Close shuts down the outbound channel, which stops the write pump and
	// closes the underlying transport.
	Close()
}

// Inbound pairs a decoded frame with the connection it arrived on.
type Inbound struct {
	Client  Client
	Message models.WSMessage
}
