// Package dberror classifies storage failures seen by the read endpoints.
package dberror

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity means the database could not be reached.
	ErrorTypeConnectivity
	ErrorTypeTimeout
	ErrorTypeAuth
)

var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"no such host",
	"dial tcp",
	"broken pipe",
	"network is unreachable",
	"no route to host",
	"closed pool",
	"pool is closed",
	"client is closing",
	"eof",
}

// Classify determines the type of a database error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 28: invalid authorization. Class 08: connection exception.
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			return ErrorTypeAuth
		case strings.HasPrefix(pgErr.Code, "08"):
			return ErrorTypeConnectivity
		}
		return ErrorTypeUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectivityPatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorTypeConnectivity
		}
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out") {
		return ErrorTypeTimeout
	}
	if strings.Contains(errStr, "authentication failed") {
		return ErrorTypeAuth
	}
	return ErrorTypeUnknown
}

// IsUnavailable reports whether err means the store is down rather than the query being wrong.
func IsUnavailable(err error) bool {
	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout:
		return true
	}
	return false
}

// UserMessage returns a message safe to show API clients.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "Database temporarily unavailable. Please try again in a moment."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeAuth:
		return "Database authentication error. Please contact support."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
