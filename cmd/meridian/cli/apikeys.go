package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/meridian-sis/meridian-sis/internal/apikeys"
)

// APIKeysCLI issues and revokes API keys from the command line.
type APIKeysCLI struct {
	service *apikeys.Service
}

// NewAPIKeysCLI constructs the helper.
func NewAPIKeysCLI(service *apikeys.Service) *APIKeysCLI {
	return &APIKeysCLI{service: service}
}

// IssueOptions configures the issue command.
type IssueOptions struct {
	UserID     int64
	Name       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IssueSummary is emitted by the issue command in JSON mode. Key holds the
// plaintext secret, shown exactly once.
type IssueSummary struct {
	OK    bool   `json:"ok"`
	KeyID int64  `json:"key_id"`
	Key   string `json:"key"`
}

// IssueCommand mints a new API key and prints the plaintext secret.
func (c *APIKeysCLI) IssueCommand(ctx context.Context, opts IssueOptions) int {
	if c == nil || c.service == nil {
		fmt.Fprintln(opts.Stderr, "apikeys cli: service not configured")
		return 1
	}
	if opts.UserID <= 0 {
		fmt.Fprintln(opts.Stderr, "user id must be positive")
		return 1
	}
	if opts.Name == "" {
		fmt.Fprintln(opts.Stderr, "key name must not be empty")
		return 1
	}
	plaintext, key, err := c.service.Issue(ctx, opts.UserID, opts.Name)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "issue key: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(IssueSummary{OK: true, KeyID: key.ID, Key: plaintext})
		return 0
	}
	fmt.Fprintf(opts.Stdout, "issued key %d for user %d\n%s\n", key.ID, opts.UserID, plaintext)
	fmt.Fprintln(opts.Stdout, "store the secret now, it is not retrievable later")
	return 0
}

// RevokeCommand disables an API key by ID.
func (c *APIKeysCLI) RevokeCommand(ctx context.Context, id int64, stdout, stderr io.Writer) int {
	if c == nil || c.service == nil {
		fmt.Fprintln(stderr, "apikeys cli: service not configured")
		return 1
	}
	if err := c.service.Revoke(ctx, id); err != nil {
		fmt.Fprintf(stderr, "revoke key: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "revoked key %d\n", id)
	return 0
}
