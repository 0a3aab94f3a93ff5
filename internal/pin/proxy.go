package pin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/module"
)

// ProxyIndex queries a Go module proxy (the GOPROXY protocol) for the
// versions of a module: GET {base}/{escaped path}/@v/list.
type ProxyIndex struct {
	base   string
	client *http.Client
}

// NewProxyIndex creates a proxy index. A nil client gets a 30 second timeout.
func NewProxyIndex(base string, client *http.Client) *ProxyIndex {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProxyIndex{base: strings.TrimSuffix(base, "/"), client: client}
}

// Source implements Index.
func (p *ProxyIndex) Source() string {
	return p.base
}

// Versions implements Index. 404 and 410 mean the proxy knows no versions.
func (p *ProxyIndex) Versions(ctx context.Context, name string) ([]string, error) {
	escaped, err := module.EscapePath(name)
	if err != nil {
		return nil, fmt.Errorf("invalid module path %q: %w", name, err)
	}

	url := p.base + "/" + escaped + "/@v/list"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		_, _ = io.Copy(io.Discard, resp.Body)
		return []string{}, nil
	default:
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	versions := []string{}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			versions = append(versions, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return versions, nil
}
