package crm

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
)

const openOpportunitiesSOQL = "SELECT Id, Name, StageName, LastActivityDate, LastModifiedDate, OwnerId FROM Opportunity WHERE IsClosed = false"

// Client is a Salesforce REST client authenticated with the JWT bearer flow.
type Client struct {
	hc          *http.Client
	tokens      oauth2.TokenSource
	instanceURL string
	apiVersion  string
	flowOutput  string
}

// ClientOpts holds parameters for creating a Salesforce Client.
type ClientOpts struct {
	Config config.SalesforceConfig
	Key    *rsa.PrivateKey // loaded from Config.JWTKeyPath when nil
	// HTTPClient is the transport for both token and API calls.
	HTTPClient *http.Client
	Now        func() time.Time
}

var _ Source = (*Client)(nil)

// New creates a Salesforce Client.
func New(opts ClientOpts) (*Client, error) {
	cfg := opts.Config
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("crm: client id is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("crm: username is required")
	}
	if cfg.LoginURL == "" {
		return nil, fmt.Errorf("crm: login url is required")
	}
	key := opts.Key
	if key == nil {
		if cfg.JWTKeyPath == "" {
			return nil, fmt.Errorf("crm: jwt key path is required")
		}
		var err error
		if key, err = LoadPrivateKey(cfg.JWTKeyPath); err != nil {
			return nil, err
		}
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	version := cfg.APIVersion
	if version == "" {
		version = "59.0"
	}
	output := cfg.FlowOutput
	if output == "" {
		output = "ColdOppList"
	}

	src := oauth2.ReuseTokenSource(nil, &jwtSource{
		key:      key,
		clientID: cfg.ClientID,
		username: cfg.Username,
		loginURL: cfg.LoginURL,
		hc:       base,
		now:      now,
	})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &Client{
		hc:          oauth2.NewClient(ctx, src),
		tokens:      src,
		instanceURL: strings.TrimRight(cfg.InstanceURL, "/"),
		apiVersion:  version,
		flowOutput:  output,
	}, nil
}

// instance returns the org base URL, taking it from the token response when
// not configured.
func (c *Client) instance() (string, error) {
	if c.instanceURL != "" {
		return c.instanceURL, nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return "", err
	}
	if s, ok := tok.Extra("instance_url").(string); ok && s != "" {
		return strings.TrimRight(s, "/"), nil
	}
	return "", fmt.Errorf("crm: instance url unknown")
}

// endpoint resolves a versioned REST API path.
func (c *Client) endpoint(path string) (string, error) {
	base, err := c.instance()
	if err != nil {
		return "", err
	}
	return base + "/services/data/v" + c.apiVersion + path, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type queryResponse struct {
	Done           bool            `json:"done"`
	NextRecordsURL string          `json:"nextRecordsUrl"`
	Records        []sfOpportunity `json:"records"`
}

type sfOpportunity struct {
	ID               string  `json:"Id"`
	Name             string  `json:"Name"`
	StageName        string  `json:"StageName"`
	LastActivityDate *string `json:"LastActivityDate"`
	LastModifiedDate string  `json:"LastModifiedDate"`
	OwnerID          string  `json:"OwnerId"`
}

// FetchActiveRecords returns every open opportunity, following pagination.
func (c *Client) FetchActiveRecords(ctx context.Context) ([]Opportunity, error) {
	next, err := c.endpoint("/query?q=" + url.QueryEscape(openOpportunitiesSOQL))
	if err != nil {
		return nil, fmt.Errorf("crm: fetch records: %w", err)
	}

	var out []Opportunity
	for next != "" {
		var page queryResponse
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("crm: fetch records: %w", err)
		}
		for _, r := range page.Records {
			opp, err := r.toOpportunity()
			if err != nil {
				return nil, fmt.Errorf("crm: record %s: %w", r.ID, err)
			}
			out = append(out, opp)
		}
		next = ""
		if !page.Done && page.NextRecordsURL != "" {
			// nextRecordsUrl is instance-relative and already versioned.
			base, err := c.instance()
			if err != nil {
				return nil, fmt.Errorf("crm: fetch records: %w", err)
			}
			next = base + page.NextRecordsURL
		}
	}
	return out, nil
}

const (
	sfDateLayout     = "2006-01-02"
	sfDateTimeLayout = "2006-01-02T15:04:05.000-0700"
)

func (r sfOpportunity) toOpportunity() (Opportunity, error) {
	opp := Opportunity{ID: r.ID, Name: r.Name, StageName: r.StageName, OwnerID: r.OwnerID}
	if r.LastActivityDate != nil && *r.LastActivityDate != "" {
		d, err := time.Parse(sfDateLayout, *r.LastActivityDate)
		if err != nil {
			return opp, fmt.Errorf("last activity date: %w", err)
		}
		opp.LastActivityDate = &d
	}
	if r.LastModifiedDate != "" {
		t, err := time.Parse(sfDateTimeLayout, r.LastModifiedDate)
		if err != nil {
			return opp, fmt.Errorf("last modified date: %w", err)
		}
		opp.LastModifiedDate = t
	}
	return opp, nil
}

type flowResult struct {
	IsSuccess    bool                   `json:"isSuccess"`
	OutputValues map[string]interface{} `json:"outputValues"`
	Errors       []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// InvokeFlow runs an autolaunched flow and returns its text output. A flow
// that succeeds without a string output returns nil.
func (c *Client) InvokeFlow(ctx context.Context, name string) (*string, error) {
	if name == "" {
		return nil, fmt.Errorf("crm: flow name is required")
	}
	u, err := c.endpoint("/actions/custom/flow/" + url.PathEscape(name))
	if err != nil {
		return nil, fmt.Errorf("crm: invoke flow %s: %w", name, err)
	}

	body := map[string]interface{}{"inputs": []map[string]interface{}{{}}}
	var results []flowResult
	if err := c.do(ctx, http.MethodPost, u, body, &results); err != nil {
		return nil, fmt.Errorf("crm: invoke flow %s: %w", name, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("crm: invoke flow %s: empty result", name)
	}
	res := results[0]
	if !res.IsSuccess {
		var msgs []string
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("crm: invoke flow %s: %s", name, strings.Join(msgs, "; "))
	}
	s, ok := res.OutputValues[c.flowOutput].(string)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
