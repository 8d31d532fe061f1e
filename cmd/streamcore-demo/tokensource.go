package main

import (
	"context"
	"fmt"
)

// staticTokenSource hands out a single bearer token supplied on the command
// line. Acquiring and refreshing OAuth tokens is a GUI/web-API concern this
// module treats as an external collaborator, so RefreshAccessToken just
// reports that the caller needs to supply a fresh one.
type staticTokenSource struct {
	token string
}

func (s staticTokenSource) AccessToken() (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("streamcore-demo: no access token configured")
	}
	return s.token, nil
}

func (s staticTokenSource) RefreshAccessToken(ctx context.Context) (string, error) {
	return "", fmt.Errorf("streamcore-demo: access token expired; supply a fresh -access-token")
}
