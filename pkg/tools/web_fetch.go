package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/harun/toolgate/pkg/capability"
)

const (
	defaultWebFetchMaxChars = 20000
	webFetchMaxBody         = 5 << 20
	webFetchUserAgent       = "toolgate/1.0 (+web_fetch)"
)

type webFetchArgs struct {
	URL      string `json:"url" jsonschema:"description=URL to fetch (http or https)"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"description=Maximum characters of text to return,minimum=100"`
}

var webFetchSchema = capability.ReflectSchema(&webFetchArgs{})

type webFetchCapability struct {
	name     string
	maxChars int
	client   *http.Client
}

func newWebFetch(unit capability.Unit, cfg WebFetchConfig, client *http.Client) *webFetchCapability {
	maxChars := unitInt(unit, "max_chars", cfg.MaxChars)
	if maxChars <= 0 {
		maxChars = defaultWebFetchMaxChars
	}
	if cfg.Timeout > 0 {
		copied := *client
		copied.Timeout = cfg.Timeout
		client = &copied
	}
	return &webFetchCapability{name: unit.Name, maxChars: maxChars, client: client}
}

func (c *webFetchCapability) Description() string {
	return "Fetch a URL and extract its readable text content"
}

func (c *webFetchCapability) InputSchema() map[string]interface{} {
	return webFetchSchema
}

func (c *webFetchCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	rawURL := stringArg(args, "url")
	if rawURL == "" {
		return capability.Result{"tool": c.name, "error": "Missing 'url' parameter"}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return c.fail(rawURL, "URL validation failed: only absolute http(s) URLs are supported"), nil
	}

	maxChars := c.maxChars
	if n, ok := intArg(args, "max_chars"); ok && n > 0 {
		maxChars = int(n)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return c.fail(rawURL, err.Error()), nil
	}
	req.Header.Set("User-Agent", webFetchUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(rawURL, err.Error()), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBody))
	if err != nil {
		return c.fail(rawURL, err.Error()), nil
	}

	text, extractor := extractText(body, resp.Header.Get("Content-Type"), parsed)

	truncated := false
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars])
		truncated = true
	}

	return capability.Result{
		"tool":      c.name,
		"url":       rawURL,
		"final_url": resp.Request.URL.String(),
		"status":    resp.StatusCode,
		"extractor": extractor,
		"truncated": truncated,
		"length":    len([]rune(text)),
		"text":      text,
	}, nil
}

func (c *webFetchCapability) fail(rawURL, message string) capability.Result {
	return capability.Result{"tool": c.name, "url": rawURL, "error": message}
}

func extractText(body []byte, contentType string, pageURL *url.URL) (string, string) {
	switch {
	case strings.Contains(contentType, "application/json"):
		var data interface{}
		if err := json.Unmarshal(body, &data); err == nil {
			formatted, _ := json.MarshalIndent(data, "", "  ")
			return string(formatted), "json"
		}
		return string(body), "raw"

	case strings.Contains(contentType, "text/html") || looksLikeHTML(body):
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err != nil {
			return string(body), "raw"
		}
		text := strings.TrimSpace(article.TextContent)
		if article.Title != "" {
			text = fmt.Sprintf("# %s\n\n%s", article.Title, text)
		}
		return text, "readability"
	}

	return string(body), "raw"
}

func looksLikeHTML(body []byte) bool {
	n := len(body)
	if n > 256 {
		n = 256
	}
	prefix := strings.ToLower(strings.TrimSpace(string(body[:n])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}
