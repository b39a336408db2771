package models

import "time"

// EmailContent is the rendered body of an email Communication.
type EmailContent struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// SMSMessage is one message of an SMS/MMS conversation with a phone number.
type SMSMessage struct {
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`
	Body      string    `json:"body"`
	MediaURLs []string  `json:"media_urls,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SendSMSRequest is the payload for sending an SMS or MMS.
type SendSMSRequest struct {
	To         string   `json:"to"`
	Body       string   `json:"body"`
	MediaURLs  []string `json:"media_urls,omitempty"`
	CustomerID *string  `json:"customer_id,omitempty"`
	JobID      *string  `json:"job_id,omitempty"`
}

// NotesUpdate is the result of saving internal notes.
type NotesUpdate struct {
	Notes     string    `json:"notes"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}
