// Package health describes the gateway's health for the operational endpoint.
package health

import (
	"regexp"
	"time"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)\s*[:=]\s*[^,\s}]+`)
)

// Status represents the health state of a component or of the gateway
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// Healthy builds a healthy status for a component
func Healthy(component string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   "ok",
		Timestamp: time.Now(),
	}
}

// Degraded builds a degraded status; the component works but below par
func Degraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "degraded",
		Message:   sanitizeMessage(message),
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy status
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   sanitizeMessage(message),
		Timestamp: time.Now(),
	}
}

// Aggregate combines component statuses into a gateway-level status. The
// result is unhealthy if any part is, degraded if any part is degraded.
func Aggregate(component string, parts ...Status) Status {
	agg := Healthy(component)
	agg.SubStatuses = parts

	for _, part := range parts {
		if !part.Healthy {
			agg.Healthy = false
			agg.Status = "unhealthy"
			agg.Message = part.Component + ": " + part.Message
			return agg
		}
		if part.Status == "degraded" && agg.Status == "healthy" {
			agg.Status = "degraded"
			agg.Message = part.Component + ": " + part.Message
		}
	}

	return agg
}

// sanitizeMessage strips connection details and credentials from messages
// before they are exposed on the health endpoint.
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	msg = portRegex.ReplaceAllString(msg, "[PORT]")
	msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	return msg
}
