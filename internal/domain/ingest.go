package domain

type IngestResponse struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"eventId,omitempty"`
	Error    string `json:"error,omitempty"`
}
