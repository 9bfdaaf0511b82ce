package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yangwenmai/threadauto/internal/retry"
)

// DefaultThreadsBaseURL is the Threads Graph API root.
const DefaultThreadsBaseURL = "https://graph.threads.net/v1.0"

// ThreadsClient implements Poster against the Meta Threads Graph API.
// Each post is a media container that is then published.
type ThreadsClient struct {
	baseURL    string
	userID     string
	token      string
	httpClient *http.Client
	publish    retry.Policy
}

// ThreadsOption configures the Threads client.
type ThreadsOption func(*ThreadsClient)

// WithThreadsBaseURL overrides the API root.
func WithThreadsBaseURL(u string) ThreadsOption {
	return func(c *ThreadsClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithThreadsHTTPClient replaces the HTTP client.
func WithThreadsHTTPClient(hc *http.Client) ThreadsOption {
	return func(c *ThreadsClient) { c.httpClient = hc }
}

// WithThreadsRetry sets the retry policy for the publish step. Without it the
// publish call is tried once.
func WithThreadsRetry(p retry.Policy) ThreadsOption {
	return func(c *ThreadsClient) { c.publish = p }
}

// NewThreadsClient creates a client posting as userID ("me" for the token owner).
func NewThreadsClient(token, userID string, opts ...ThreadsOption) *ThreadsClient {
	if userID == "" {
		userID = "me"
	}
	c := &ThreadsClient{
		baseURL: DefaultThreadsBaseURL,
		userID:  userID,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		publish: retry.Policy{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// CreateRoot posts text, with an image when imageURL is set.
func (c *ThreadsClient) CreateRoot(ctx context.Context, text, imageURL string) (string, error) {
	form := url.Values{"text": {text}, "media_type": {"TEXT"}}
	if imageURL != "" {
		form.Set("media_type", "IMAGE")
		form.Set("image_url", imageURL)
	}
	return c.post(ctx, form)
}

// CreateReply posts text as a reply to parentHandle.
func (c *ThreadsClient) CreateReply(ctx context.Context, parentHandle, text string) (string, error) {
	if parentHandle == "" {
		return "", errors.New("threads: reply without parent")
	}
	form := url.Values{"text": {text}, "media_type": {"TEXT"}, "reply_to_id": {parentHandle}}
	return c.post(ctx, form)
}

// post creates a container and publishes it. Container creation has no visible
// effect, so its failures are left to the caller's retry loop. The publish step
// is retried here with the same creation_id, and its final failure is Permanent:
// a publish that timed out may still have gone live, and a new container would
// post the text twice.
func (c *ThreadsClient) post(ctx context.Context, form url.Values) (string, error) {
	container, err := c.call(ctx, "threads", form)
	if err != nil {
		return "", fmt.Errorf("threads: create container: %w", err)
	}
	id, err := retry.Do(ctx, c.publish, "threads.publish", func(ctx context.Context) (string, error) {
		return c.call(ctx, "threads_publish", url.Values{"creation_id": {container}})
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("threads: publish container %s: %w", container, err))
	}
	return id, nil
}

func (c *ThreadsClient) call(ctx context.Context, edge string, form url.Values) (string, error) {
	form.Set("access_token", c.token)
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.userID), edge)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var gr graphResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if gr.Error != nil {
		return "", fmt.Errorf("api error %d: %s", gr.Error.Code, gr.Error.Message)
	}
	if gr.ID == "" {
		return "", errors.New("no id in response")
	}
	return gr.ID, nil
}
