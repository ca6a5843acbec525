package models

// SessionInfo is the externally visible state of one session
type SessionInfo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// CreateSessionRequest is the payload for opening (or re-showing) a session
type CreateSessionRequest struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Proxy      string `json:"proxy,omitempty"`
	Background bool   `json:"background,omitempty"`
}

// ResizeRequest carries the host window size used for layout bounds
type ResizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
