package models

import (
	"time"
)

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error response
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewSuccessResponse creates a success response envelope
func NewSuccessResponse(data interface{}, message string) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewErrorResponse creates an error response envelope
func NewErrorResponse(code, message string, details map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	}
}

// LeaderboardResponse is the API payload for leaderboard reads
type LeaderboardResponse struct {
	Period      string      `json:"period"`
	Leaderboard interface{} `json:"leaderboard"`
	TotalUsers  int         `json:"total_users"`
}

// CardRequestPayload is the body of a share-card request
type CardRequestPayload struct {
	Template string `json:"template,omitempty"`
	Platform string `json:"platform"`
}
