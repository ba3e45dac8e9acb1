package models

type ShareLink struct {
	Message    string `json:"message,omitempty"`
	ShareURL   string `json:"share_url"`
	ShareToken string `json:"share_token"`
}

type Share struct {
	ID           int       `json:"id"`
	GenerationID int       `json:"generation_id"`
	Platform     string    `json:"platform"`
	ShareURL     string    `json:"share_url"`
	ShareToken   string    `json:"share_token"`
	CreatedAt    Timestamp `json:"created_at"`
	ResultURL    string    `json:"result_url,omitempty"`
}

type SharePage struct {
	Shares []Share `json:"shares"`
	Total  int     `json:"total"`
}

type SharedGeneration struct {
	ImageURL string    `json:"image_url"`
	Platform string    `json:"platform"`
	SharedAt Timestamp `json:"shared_at"`
}

type BonusClaim struct {
	Success      bool `json:"success"`
	CreditsAdded int  `json:"credits_added"`
}
