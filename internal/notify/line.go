package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultLineEndpoint = "https://notify-api.line.me/api/notify"

// LineSender posts messages to the LINE Notify API.
type LineSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewLine(endpoint, token string) (*LineSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("line: token is required")
	}
	if endpoint == "" {
		endpoint = DefaultLineEndpoint
	}
	return &LineSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{},
	}, nil
}

func (l *LineSender) Send(ctx context.Context, text string) error {
	form := url.Values{"message": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &SendError{Provider: ProviderLine, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+l.token)

	resp, err := l.client.Do(req)
	if err != nil {
		return &SendError{Provider: ProviderLine, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SendError{
			Provider: ProviderLine,
			Status:   resp.StatusCode,
			Err:      errors.New(strings.TrimSpace(string(body))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
