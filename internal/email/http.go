package email

import (
	"fmt"
	"io"
	"net/http"
)

// readResponse drains and closes the body, returning it with the status code.
func readResponse(resp *http.Response, provider string) ([]byte, error) {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close %s response body: %w", provider, closeErr)
	}
	return body, nil
}

func statusError(provider string, status int, body []byte) error {
	if len(body) > 0 {
		return fmt.Errorf("%s API returned status %d: %s", provider, status, string(body))
	}
	return fmt.Errorf("%s API returned status %d", provider, status)
}
