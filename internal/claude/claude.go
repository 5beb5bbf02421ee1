package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one coding-assistant invocation in a working directory and
// returns the final human-readable result text.
type Runner interface {
	Run(ctx context.Context, prompt, workDir string) (string, error)
}

// Client wraps the Claude Code CLI
type Client struct {
	command      string
	timeout      time.Duration
	allowedTools []string
}

// NewClient creates a new Claude Code client. The timeout is the hard ceiling
// on a single invocation; expiry surfaces as an assistant failure.
func NewClient(command string, timeout time.Duration, allowedTools []string) *Client {
	return &Client{
		command:      command,
		timeout:      timeout,
		allowedTools: allowedTools,
	}
}

// Run executes Claude Code with the given prompt. The streamed JSON events
// are not interpreted beyond extracting the final result or error payload.
func (c *Client) Run(ctx context.Context, prompt, workDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	for _, tool := range c.allowedTools {
		args = append(args, "--allowedTools", tool)
	}
	args = append(args, "--prompt", prompt)

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start claude: %w", err)
	}

	// Read and parse streaming JSON output
	var result strings.Builder
	scanner := bufio.NewScanner(stdout)

	// Increase buffer size for large outputs
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			result.WriteString(line)
			result.WriteString("\n")
			continue
		}

		switch event["type"] {
		case "result":
			// The final payload supersedes accumulated assistant text.
			if text, ok := event["result"].(string); ok {
				result.Reset()
				result.WriteString(text)
			}
			if isErr, ok := event["is_error"].(bool); ok && isErr {
				return "", fmt.Errorf("claude error: %s", result.String())
			}
		case "assistant":
			if text, ok := event["content"].(string); ok {
				result.WriteString(text)
			}
		case "error":
			if msg, ok := event["error"].(string); ok {
				return "", fmt.Errorf("claude error: %s", msg)
			}
		}
	}

	stderrBytes, _ := io.ReadAll(stderr)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("claude timed out after %v", c.timeout)
		}
		return "", fmt.Errorf("claude failed: %w: %s", err, string(stderrBytes))
	}

	return result.String(), nil
}

// IsRateLimited checks if an error indicates rate limiting
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests")
}
