package domain

// MessageType tags an inbound panel message.
type MessageType string

const (
	MsgGetCurrentDomain      MessageType = "GET_CURRENT_DOMAIN"
	MsgGetExtensionStatus    MessageType = "GET_EXTENSION_STATUS"
	MsgUpdateExtensionStatus MessageType = "UPDATE_EXTENSION_STATUS"
	MsgStartBlockingDomain   MessageType = "START_BLOCKING_DOMAIN"
	MsgStartAllowingDomain   MessageType = "START_ALLOWING_DOMAIN"
)

// Message is a request from the UI panel. Parameter is only meaningful for
// UPDATE_EXTENSION_STATUS.
type Message struct {
	Type      MessageType `json:"type"`
	Parameter string      `json:"parameter,omitempty"`
}
