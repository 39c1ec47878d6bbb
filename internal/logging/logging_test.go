package logging

import (
	"errors"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("info", "json")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
	if logger.Logger == nil {
		t.Error("Expected zap.Logger to be initialized")
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger("invalid", "json")
	if err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
}

func TestWithPeerID(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	peerLogger := logger.WithPeerID("peer-123")

	if peerLogger == nil {
		t.Error("Expected logger with peer ID, got nil")
	}
}

func TestWithDocID(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	docLogger := logger.WithDocID("doc-456")

	if docLogger == nil {
		t.Error("Expected logger with doc ID, got nil")
	}
}

func TestWithPath(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	pathLogger := logger.WithPath("/app/state")

	if pathLogger == nil {
		t.Error("Expected logger with path, got nil")
	}
}

func TestWithError(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	testErr := errors.New("test error")
	errorLogger := logger.WithError(testErr)

	if errorLogger == nil {
		t.Error("Expected logger with error, got nil")
	}
}
