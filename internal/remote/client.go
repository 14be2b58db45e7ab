// Package remote is the HTTP client for the transaction service. Every
// authenticated call takes the bearer token explicitly; the client itself
// holds no session state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized signals that the service rejected the credentials. The
// caller's session must be treated as invalid.
var ErrUnauthorized = errors.New("remote: unauthorized")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type Transaction struct {
	ID          int64   `json:"id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	CategoryID  int64   `json:"category_id"`
	Date        string  `json:"date"` // ISO timestamp, e.g. "2026-01-16T10:30:00"
	Type        string  `json:"type"`
}

type CreateTransactionRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	CategoryID  int64   `json:"category_id"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Source      string  `json:"source"`
}

// Login exchanges credentials for a bearer token. The service expects a
// form-encoded body with the email passed as username.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return LoginResult{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result LoginResult
	if err := c.do(req, &result); err != nil {
		return LoginResult{}, err
	}
	return result, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, r RegisterRequest) (User, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/auth/register", "", r)
	if err != nil {
		return User{}, err
	}
	var user User
	if err := c.do(req, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateTransaction submits a new transaction and returns the created row,
// including its remote id.
func (c *Client) CreateTransaction(ctx context.Context, token string, r CreateTransactionRequest) (Transaction, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/transactions/", token, r)
	if err != nil {
		return Transaction{}, err
	}
	var tx Transaction
	if err := c.do(req, &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ListTransactions fetches one page of transactions, newest first.
func (c *Client) ListTransactions(ctx context.Context, token string, limit, skip int) ([]Transaction, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("skip", strconv.Itoa(skip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/transactions/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	setAuth(req, token)

	var txs []Transaction
	if err := c.do(req, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, token)
	return req, nil
}

// setAuth attaches the bearer header. An empty token leaves the request
// unauthenticated; the service will reject it with 401.
func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
