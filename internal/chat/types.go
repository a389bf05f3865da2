package chat

// Message is one inbound chat event delivered over the bridge WebSocket.
// Regular user messages carry Msg; membership feed events carry Feed.
type Message struct {
	Room   string       `json:"room"`
	Msg    string       `json:"msg"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageMeta `json:"json,omitempty"`
	Feed   *FeedEvent   `json:"feed,omitempty"`
}

// MessageMeta carries structured sender identity when the bridge provides it.
type MessageMeta struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// FeedEvent is a room membership change reported by the bridge.
type FeedEvent struct {
	Type   string `json:"type"` // "member_leave" | "member_kick" | "member_join"
	UserID string `json:"user_id"`
}

const (
	FeedMemberLeave = "member_leave"
	FeedMemberKick  = "member_kick"
	FeedMemberJoin  = "member_join"
)

// ReplyRequest posts a broadcast message into a room.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

// DirectRequest posts a private message to a single user.
type DirectRequest struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Data   string `json:"data"`
}

// Member is one current room member as reported by the bridge.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type membersResponse struct {
	Members []Member `json:"members"`
}

// BridgeInfo is the bridge's /config self-description, used by health checks.
type BridgeInfo struct {
	Version string `json:"version"`
	Rooms   int    `json:"rooms"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)
