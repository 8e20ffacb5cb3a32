package chat

import "time"

// Session identifies one conversation thread. The identifier is supplied by
// the caller and sessions are created lazily on first reference.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
