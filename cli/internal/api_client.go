package cli

import (
	"fmt"
	"net/http"

	"github.com/devilmonastery/jobboard/internal/client"
)

// newAPIClient creates the authenticated portal client for a context. Token
// refreshes write back to the context's credentials file.
func newAPIClient(ctx *Context, store client.TokenStore) (*client.Client, error) {
	cfg := ctx.ClientConfig(store)
	cfg.HTTPClient = &http.Client{Timeout: ctx.Timeout()}

	apiClient, err := client.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return apiClient, nil
}
