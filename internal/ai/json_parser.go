package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// maxResponseSize bounds how much model output the parser will accept.
const maxResponseSize = 10 * 1024 * 1024

// Pre-compiled patterns for the cleanup strategies. Compiling per parse is
// roughly 15x slower.
var (
	fenceRegex         = regexp.MustCompile("(?s)`{3}(?:json|javascript|js)?\\s*\n?([\\s\\S]*?)\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	lineCommentRegex   = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseResult holds the outcome of one resilient parse attempt.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// Parse unmarshals model output into T, tolerating the formatting quirks
// LLMs produce around otherwise-valid JSON.
//
// Strategy sequence:
//  1. Direct JSON parse
//  2. Strip markdown code fences and retry
//  3. Fix common issues (trailing commas, unquoted keys, comments) and retry
//  4. Extract the first JSON object or array from mixed prose and retry
//
// The context string is prepended to error messages so callers can tell
// which operation produced the unparseable response.
func Parse[T any](text, context string) ParseResult[T] {
	if len(text) > maxResponseSize {
		return parseError[T](fmt.Sprintf("response exceeds size limit (%d > %d bytes)",
			len(text), maxResponseSize), text, context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T]("empty response", text, context)
	}

	if data, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: data, OriginalText: text}
	} else {
		slog.Debug("direct JSON parse failed, trying cleanup strategies",
			"error", err.Error(),
			"textPreview", truncate(text, 100),
			"context", context)
	}

	unfenced := removeCodeFences(trimmed)
	if unfenced != trimmed {
		if data, err := tryParse[T](unfenced); err == nil {
			return ParseResult[T]{Success: true, Data: data, OriginalText: text}
		}
	}

	cleaned := cleanupJSON(unfenced)
	if data, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: data, OriginalText: text}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if data, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: data, OriginalText: text}
		}
	}

	slog.Warn("all JSON parsing strategies failed",
		"textPreview", truncate(text, 200),
		"context", context)
	return parseError[T]("all JSON parsing strategies failed", text, context)
}

// ParseOrDefault parses model output and returns fallback on any failure.
func ParseOrDefault[T any](text, context string, fallback T) T {
	result := Parse[T](text, context)
	if !result.Success {
		return fallback
	}
	return result.Data
}

func tryParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips ```json ... ``` style fences, and single backticks
// that wrap the whole payload.
func removeCodeFences(text string) string {
	cleaned := fenceRegex.ReplaceAllString(text, "$1")
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "`"), "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes trailing commas, unquoted keys, and comments. Single
// quotes are left alone; converting them would corrupt valid JSON containing
// apostrophes.
func cleanupJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(strings.TrimSpace(text), "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = blockCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the outermost JSON object or array out of mixed prose.
// The first-character check keeps an array response from being mistaken for
// its first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '[':
			if match := arrayRegex.FindString(text); match != "" {
				return match
			}
		case '{':
			if match := objectRegex.FindString(text); match != "" {
				return match
			}
		}
	}
	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}

func parseError[T any](message, text, context string) ParseResult[T] {
	var zero T
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{
		Success:      false,
		Data:         zero,
		Error:        message,
		OriginalText: text,
	}
}

// truncate shortens s for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
