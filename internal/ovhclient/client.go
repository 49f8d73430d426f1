// Package ovhclient implements the OVH Client Pool (C1): signed HTTP access
// to the OVH REST API, one client per configured account, shared read-only
// after construction (spec.md §5).
package ovhclient

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // OVH's signature scheme mandates SHA1.
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ovhfleet/acquire/pkg/account"
)

// perCallTimeout bounds every individual HTTP call (spec.md §5: 20s).
const perCallTimeout = 20 * time.Second

// endpointRoots maps each endpoint region to its API root, per spec.md §6.
var endpointRoots = map[account.EndpointRegion]string{
	account.RegionEU: "https://eu.api.ovh.com/1.0",
	account.RegionUS: "https://api.us.ovhcloud.com/1.0",
	account.RegionCA: "https://ca.api.ovh.com/1.0",
}

// Client issues signed requests against one OVH account's credentials.
type Client struct {
	httpClient *http.Client
	root       string
	appKey     string
	appSecret  string
	consumer   string
}

// newClient builds a Client for the given account.
func newClient(acct account.Account) (*Client, error) {
	root, ok := endpointRoots[acct.EndpointRegion]
	if !ok {
		return nil, fmt.Errorf("ovhclient: unknown endpoint region %q", acct.EndpointRegion)
	}
	return &Client{
		httpClient: &http.Client{Timeout: perCallTimeout},
		root:       root,
		appKey:     acct.ApplicationKey,
		appSecret:  acct.ApplicationSecret,
		consumer:   acct.ConsumerKey,
	}, nil
}

// sign computes the OVH application-signing header (spec.md §6):
// SHA1(appSecret + "+" + consumerKey + "+" + method + "+" + url + "+" + body + "+" + timestamp).
func (c *Client) sign(method, url, body string, timestamp int64) string {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s+%s+%s+%s+%s+%d", c.appSecret, c.consumer, method, url, body, timestamp)
	return "$1$" + hex.EncodeToString(h.Sum(nil))
}

// Do issues a signed request against path (relative to the account's API
// root) and decodes a successful JSON response into out. out may be nil for
// responses with no body (e.g. DELETE). On any non-2xx response it returns a
// typed error from the taxonomy in errors.go.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ovhclient: marshalling request body: %w", err)
		}
		bodyBytes = b
	}

	url := c.root + path
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("ovhclient: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ovh-Application", c.appKey)
	req.Header.Set("X-Ovh-Consumer", c.consumer)
	req.Header.Set("X-Ovh-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Ovh-Signature", c.sign(method, url, string(bodyBytes), timestamp))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServerError{&APIError{Method: method, Path: path, Status: 0, Message: err.Error()}}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ovhclient: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := string(respBody)
		var apiMsg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiMsg) == nil && apiMsg.Message != "" {
			message = apiMsg.Message
		}
		return classify(method, path, resp.StatusCode, message)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("ovhclient: decoding response: %w", err)
	}
	return nil
}
