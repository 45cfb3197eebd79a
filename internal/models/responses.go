package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// AppStatus reports the application's name and version
// @Description Application status
type AppStatus struct {
	Status  string `json:"status" example:"ok"`
	Name    string `json:"name" example:"EML Parser API"`
	Version string `json:"version" example:"0.1.0"`
}

// ErrorResponse is the body of every non-2xx API response
// @Description Error response
type ErrorResponse struct {
	Detail string `json:"detail" example:"Email not found"`
}

// DeleteResponse acknowledges a cascading delete
// @Description Delete acknowledgement
type DeleteResponse struct {
	Status string `json:"status" example:"deleted"`
	ID     int    `json:"id" example:"42"`
}

// ParsedEmailSummary is a parsed email with its evaluation decoded
// @Description Parsed email with decoded evaluation
type ParsedEmailSummary struct {
	ID               int       `json:"id"`
	FromAddress      string    `json:"from_address"`
	ToAddress        string    `json:"to_address"`
	Subject          string    `json:"subject"`
	Date             time.Time `json:"date"`
	SenderIP         *string   `json:"sender_ip"`
	OllamaEvaluation any       `json:"ollama_evaluation"`
	RawEmailID       *int      `json:"raw_email_id"`
}
