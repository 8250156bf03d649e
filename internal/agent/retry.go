package agent

import (
	"context"
	"time"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/tools"
)

// executeWithRetry runs a tool with exponential backoff. Only transient
// failures of retry-safe tools are retried; everything else surfaces after
// the first attempt. The returned result always reflects the final attempt.
func (a *Agent) executeWithRetry(ctx context.Context, tool *tools.Tool,
	args map[string]any) conversation.ToolResult {

	result := conversation.ToolResult{Tool: tool.Name(), Args: args}
	delay := a.cfg.RetryInitialDelay
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= a.cfg.ToolMaxRetries; attempt++ {
		result.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
		output, err := tool.Execute(attemptCtx, args)
		cancel()

		if err == nil {
			result.Success = true
			result.Output = output
			result.Latency = time.Since(start)
			a.logger.Debug("tool executed", "tool", tool.Name(), "attempts", attempt)
			return result
		}

		lastErr = err
		kind := tools.KindOf(err)
		if !kind.Retryable() || !tool.RetrySafe() {
			break
		}
		if attempt == a.cfg.ToolMaxRetries {
			break
		}

		a.logger.Debug("retrying tool after transient failure",
			"tool", tool.Name(), "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
			result.ErrorKind = string(tools.KindTransient)
			result.Latency = time.Since(start)
			return result
		case <-time.After(delay):
			delay = min(delay*2, a.cfg.RetryMaxDelay)
		}
	}

	result.Success = false
	result.Error = lastErr.Error()
	result.ErrorKind = string(tools.KindOf(lastErr))
	result.Latency = time.Since(start)
	a.logger.Warn("tool failed", "tool", tool.Name(),
		"attempts", result.Attempts, "kind", result.ErrorKind, "error", lastErr)
	return result
}
