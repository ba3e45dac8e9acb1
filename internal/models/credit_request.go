package models

const (
	MinRequestedAmount = 1
	MaxRequestedAmount = 100
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusDenied:
		return true
	}
	return false
}

type CreditRequest struct {
	ID              int           `json:"id"`
	UserID          int           `json:"user_id"`
	Username        string        `json:"username,omitempty"`
	RequestedAmount int           `json:"requested_amount"`
	Reason          string        `json:"reason"`
	Status          RequestStatus `json:"status"`
	CreatedAt       Timestamp     `json:"created_at"`
	ReviewedBy      *int          `json:"reviewed_by,omitempty"`
	ReviewedAt      *Timestamp    `json:"reviewed_at,omitempty"`
}

type CreditRequestPage struct {
	Requests []CreditRequest `json:"requests"`
	Total    int             `json:"total"`
}

type CreditRequestReceipt struct {
	Message   string `json:"message"`
	RequestID int    `json:"request_id"`
}

type ApprovalResult struct {
	Message        string `json:"message"`
	NewCreditTotal int    `json:"new_try_ons"`
}

type DenialResult struct {
	Message string `json:"message"`
}
