package main

import (
	"errors"
	"fmt"

	"github.com/wondertwin-ai/apiai-git/internal/client"
	"github.com/wondertwin-ai/apiai-git/internal/config"
	"github.com/wondertwin-ai/apiai-git/internal/history"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// Exit codes by error category.
const (
	exitFailure   = 1
	exitConfig    = 2
	exitTransport = 3
	exitRejected  = 4
	exitDecode    = 5
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrMissingCredential),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, client.ErrMissingToken),
		errors.Is(err, history.ErrNotInitialized),
		errors.Is(err, history.ErrAlreadyInitialized):
		return exitConfig
	case client.IsTransport(err), errors.Is(err, history.ErrUnreachable):
		return exitTransport
	case client.StatusCode(err) != 0:
		return exitRejected
	case errors.Is(err, resource.ErrCorruptSnapshot), errors.Is(err, history.ErrBlobNotFound):
		return exitDecode
	default:
		return exitFailure
	}
}

// guidance returns a hint telling the user how to fix the environment.
func guidance(err error, opts options) string {
	switch {
	case errors.Is(err, config.ErrMissingCredential):
		return fmt.Sprintf("Export your agent's developer access token, e.g.\n  export %s=<token>", tokenEnv(opts))
	case errors.Is(err, history.ErrNotInitialized):
		return "No snapshot history is linked yet. Run:\n  apiai-git init <repo_url>"
	case errors.Is(err, history.ErrAlreadyInitialized):
		return "A snapshot history is already linked; remove it first to link another repository."
	case errors.Is(err, history.ErrUnreachable):
		return "Cannot reach this URL. Likely a malformed URL or a private repository."
	case errors.Is(err, config.ErrInvalidConfig):
		return fmt.Sprintf("Fix the settings in %s.", opts.configPath)
	case client.StatusCode(err) == 401:
		return "The developer access token was rejected."
	default:
		return ""
	}
}

// tokenEnv names the variable the configuration reads the token from.
func tokenEnv(opts options) string {
	if cfg, err := config.Load(opts.configPath); err == nil {
		return cfg.TokenEnv
	}
	return config.DefaultTokenEnv
}
