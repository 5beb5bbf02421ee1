package retry

import "strings"

// ClassifyAssistant classifies errors from the Claude CLI.
func ClassifyAssistant(err error) ErrorType {
	if err == nil {
		return Permanent
	}

	errStr := strings.ToLower(err.Error())

	// Rate limiting
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "overloaded") {
		return RateLimited
	}

	// Timeouts are retryable
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "deadline exceeded") {
		return Retryable
	}

	// Network errors are retryable
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "i/o timeout") {
		return Retryable
	}

	// Server errors from the API behind the CLI
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") {
		return Retryable
	}

	return Permanent
}

// ClassifyGit classifies errors from git subprocess invocations. Only
// obviously transient transport failures are retried; everything else is a
// hard stop for the issue this cycle.
func ClassifyGit(err error) ErrorType {
	if err == nil {
		return Permanent
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "could not resolve host") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "early eof") ||
		strings.Contains(errStr, "timed out") {
		return Retryable
	}

	return Permanent
}
