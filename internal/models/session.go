package models

// PlaceholderUserID is the user id a session carries between login and the first
// successful profile refresh.
const PlaceholderUserID = 0

type Session struct {
	Username         string `json:"username"`
	CreditsRemaining int    `json:"try_ons"`
	UserID           int    `json:"user_id"`
	AuthToken        string `json:"-"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	TryOns   int    `json:"try_ons"`
}

type Profile struct {
	Username string `json:"username"`
	TryOns   int    `json:"try_ons"`
	UserID   int    `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ErrorDetail struct {
	Detail string `json:"detail"`
}
