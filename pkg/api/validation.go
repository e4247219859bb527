package api

import (
	"fmt"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
	MaxPlugins     int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    1000,
		MaxContentSize: 1024 * 1024,
		MaxPlugins:     128,
	}
}

// ValidateChatRequest checks a ChatRequest for validity. It returns an
// *APIError describing the first failure, or nil if the request is valid.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must contain at least one item")
	}
	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d items", cfg.MaxMessages))
	}

	for i, m := range req.Messages {
		param := fmt.Sprintf("messages[%d]", i)
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return NewInvalidRequestError(param+".role",
				fmt.Sprintf("role must be one of system, user, assistant; got %q", m.Role))
		}
		if cfg.MaxContentSize > 0 && len(m.Content) > cfg.MaxContentSize {
			return NewInvalidRequestError(param+".content",
				fmt.Sprintf("content exceeds maximum size of %d bytes", cfg.MaxContentSize))
		}
	}

	if cfg.MaxPlugins > 0 && len(req.Plugins) > cfg.MaxPlugins {
		return NewInvalidRequestError("plugins",
			fmt.Sprintf("plugins exceeds maximum of %d", cfg.MaxPlugins))
	}
	if err := validateNames("plugins", req.Plugins); err != nil {
		return err
	}
	return validateNames("confirmedPlugins", req.ConfirmedPlugins)
}

func validateNames(param string, names []string) *APIError {
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return NewInvalidRequestError(fmt.Sprintf("%s[%d]", param, i), "plugin name must not be empty")
		}
		if _, dup := seen[n]; dup {
			return NewInvalidRequestError(fmt.Sprintf("%s[%d]", param, i),
				fmt.Sprintf("duplicate plugin name %q", n))
		}
		seen[n] = struct{}{}
	}
	return nil
}
