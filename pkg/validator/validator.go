package validator

import (
	"sort"
	"strings"
)

const maxMessageLength = 2000

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// Error makes ValidationErrors usable as an error value.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateMessage checks an outgoing message before it is handed to the
// optimistic send path.
func ValidateMessage(content, msgType string) ValidationErrors {
	errs := make(ValidationErrors)

	content = strings.TrimSpace(content)
	if content == "" {
		errs.Add("content", "Message cannot be empty")
	} else if len(content) > maxMessageLength {
		errs.Add("content", "Message is too long")
	}

	if strings.TrimSpace(msgType) == "" {
		errs.Add("type", "Message type is required")
	}

	return errs
}

// ValidateSearchQuery bounds the client-side conversation search input.
func ValidateSearchQuery(query string) ValidationErrors {
	errs := make(ValidationErrors)

	if len(query) > 200 {
		errs.Add("query", "Search query is too long")
	}

	return errs
}
