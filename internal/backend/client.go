// Package backend is a client for the storefront's REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/dimitrije/shopfront-api/internal/models"
	jmespath "github.com/jmespath-community/go-jmespath"
)

var ErrNotFound = errors.New("resource not found")

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

type Resource string

const (
	Products Resource = "products"
	Orders   Resource = "orders"
	Users    Resource = "users"
	Messages Resource = "messages"
	Reviews  Resource = "reviews"
	Wishlist Resource = "wishlist"
	Compare  Resource = "compare"
)

var resources = map[Resource]bool{
	Products: true, Orders: true, Users: true, Messages: true,
	Reviews: true, Wishlist: true, Compare: true,
}

func ParseResource(s string) (Resource, bool) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	return r, resources[r]
}

// Public reports whether anonymous clients may read the resource.
func (r Resource) Public() bool {
	return r == Products || r == Reviews
}

type Client struct {
	baseURL  string
	rolePath string
	token    string
	http     *http.Client
}

// NewClient validates cfg.RolePath as a JMESPath expression. hc may be nil.
func NewClient(cfg config.BackendConfig, hc *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("backend url is required")
	}

	rolePath := strings.TrimSpace(cfg.RolePath)
	if rolePath == "" {
		rolePath = "role"
	}
	if _, err := jmespath.Compile(rolePath); err != nil {
		return nil, fmt.Errorf("invalid role path %q: %w", rolePath, err)
	}

	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		rolePath: rolePath,
		http:     hc,
	}, nil
}

// As returns a client that sends token as a bearer credential.
func (c *Client) As(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// FetchRole reads the role record for email. A missing record is RoleNone
// without error; transport and decoding failures are returned.
func (c *Client) FetchRole(ctx context.Context, email string) (models.Role, error) {
	var payload any
	err := c.do(ctx, http.MethodGet, "/users/role/"+url.PathEscape(email), nil, nil, &payload)
	if errors.Is(err, ErrNotFound) {
		return models.RoleNone, nil
	}
	if err != nil {
		return models.RoleNone, err
	}

	value, err := jmespath.Search(c.rolePath, payload)
	if err != nil {
		return models.RoleNone, fmt.Errorf("extract role: %w", err)
	}

	switch v := value.(type) {
	case nil:
		return models.RoleNone, nil
	case string:
		return models.ParseRole(v), nil
	default:
		return models.RoleNone, fmt.Errorf("extract role: unexpected %T at %q", value, c.rolePath)
	}
}

func (c *Client) List(ctx context.Context, res Resource, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, "/"+string(res), query, nil, out)
}

func (c *Client) Get(ctx context.Context, res Resource, id string, out any) error {
	return c.do(ctx, http.MethodGet, resourcePath(res, id), nil, nil, out)
}

func (c *Client) Create(ctx context.Context, res Resource, body, out any) error {
	return c.do(ctx, http.MethodPost, "/"+string(res), nil, body, out)
}

func (c *Client) Update(ctx context.Context, res Resource, id string, body, out any) error {
	return c.do(ctx, http.MethodPatch, resourcePath(res, id), nil, body, out)
}

func (c *Client) Delete(ctx context.Context, res Resource, id string) error {
	return c.do(ctx, http.MethodDelete, resourcePath(res, id), nil, nil, nil)
}

// UpdateUserPhoto stores a new profile photo URL on the backend user record.
func (c *Client) UpdateUserPhoto(ctx context.Context, email, photoURL string) error {
	body := map[string]string{"photoURL": photoURL}
	return c.do(ctx, http.MethodPatch, resourcePath(Users, email), nil, body, nil)
}

func resourcePath(res Resource, id string) string {
	return "/" + string(res) + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
