package models

import "time"

type GenerationRequest struct {
	SourceImage       []byte
	Filename          string
	TargetHairstyleID FlexibleID
	IssuedAt          time.Time
}

type GenerationResult struct {
	Image             []byte     `json:"-"`
	ContentType       string     `json:"content_type"`
	SourceHairstyleID FlexibleID `json:"source_hairstyle_id"`
	IssuedAt          time.Time  `json:"issued_at"`
	CompletedAt       time.Time  `json:"completed_at"`
	TransferKey       string     `json:"transfer_key,omitempty"`
	FallbackURL       string     `json:"fallback_url,omitempty"`
}

type GenerationHairstyle struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

type Generation struct {
	ID        int                  `json:"id"`
	ResultURL string               `json:"result_url"`
	Hairstyle *GenerationHairstyle `json:"hairstyle,omitempty"`
	CreatedAt Timestamp            `json:"created_at"`
}

type GenerationPage struct {
	Generations []Generation `json:"generations"`
	Total       int          `json:"total"`
}

type Video struct {
	Data        []byte
	ContentType string
}

type TryOnReset struct {
	Message string `json:"message"`
	TryOns  int    `json:"try_ons"`
}
