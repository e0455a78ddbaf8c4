package examgen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes a transcript of one generation: parameters, prompts,
// raw responses and the outcome
type LLMLogger struct {
	file *os.File
	mu   sync.Mutex
	key  CacheKey
}

// NewLLMLogger creates dir/<key>.log for a generation. A later generation
// with the same parameters overwrites it.
func NewLLMLogger(dir string, key CacheKey, params GenerationParams) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", key))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{
		file: file,
		key:  key,
	}

	logger.Logf("=== Question Generation Log ===\n")
	logger.Logf("Cache Key: %s\n", key)
	logger.Logf("Subject: %s\n", params.Subject)
	logger.Logf("Topic: %s\n", params.Topic)
	logger.Logf("Type: %s, Difficulty: %s, Bloom: %s, N: %d\n", params.QType, params.Difficulty, params.BloomLevel, params.N)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("===============================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf(format, args...)
}

func (ll *LLMLogger) logf(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs a prompt sent to the model
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	ll.Logf("=== LLM REQUEST (%s) ===\n", module)
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse logs the model's raw text
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\n", module)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogOutcome logs how the generation ended
func (ll *LLMLogger) LogOutcome(outcome string, records int) {
	ll.Logf("Outcome: %s (%d records)\n", outcome, records)
}

// Close writes the footer and closes the log file
func (ll *LLMLogger) Close() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.logf("=== Question Generation Complete ===\n")
	ll.logf("Completed: %s\n", time.Now().Format(time.RFC3339))
	ll.logf("====================================\n")
	err := ll.file.Close()
	ll.file = nil
	return err
}
