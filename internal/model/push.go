package model

// PushMessage is the payload handed to the push gateway.
type PushMessage struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}
