package protocol

import "encoding/json"

type ChatPosted struct {
	Username  string `json:"username"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	PostID    int64  `json:"postid"`
}

type HistoryEntry struct {
	PostID    int64  `json:"postid"`
	Username  string `json:"username"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

type History struct {
	History []HistoryEntry `json:"history"`
}

type ChatRemove struct {
	PostID int64 `json:"postid"`
}

type SliceRequest struct {
	Name         string `json:"name"`
	CurrentSlice int    `json:"currentSlice"`
}

type UploadEnd struct {
	Name  string `json:"name"`
	Local string `json:"local"`
}

type UploadError struct {
	Name string `json:"name"`
}

type UserPresence struct {
	Username string `json:"username"`
}

// Encode wraps data in an envelope for event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
