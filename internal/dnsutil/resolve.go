// internal/dnsutil/resolve.go
//
// Public DNS lookups over a DNS-over-HTTPS JSON API.
//
// Context
// -------
// The hub checks that its public names (stable_public_dns_name and the
// admin names) really point at the router.  Local resolvers, host files,
// and split-horizon DNS would hide a mistake, so the lookup goes to a
// public resolver's JSON endpoint (dns.google by default).
//
// Response handling follows the endpoint's format:
//   - Status 3 (NXDOMAIN) means "no records", not an error.
//   - Any other non-zero Status is an error.
//   - Only answers with type 1 (A) are returned.
package dnsutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL is Google's DNS-over-HTTPS JSON endpoint.
const DefaultBaseURL = "https://dns.google"

const (
	statusNoError  = 0
	statusNXDomain = 3
	typeA          = 1
)

// ErrNoRecords is returned by ResolveA when a name has no A records and
// the caller asked for at least one.
var ErrNoRecords = errors.New("no A records found")

// Resolver queries a DNS-over-HTTPS JSON API.
type Resolver struct {
	client *resty.Client
}

// Option configures a Resolver.
type Option func(*resty.Client)

// WithBaseURL points the Resolver at another endpoint, mainly for tests.
func WithBaseURL(u string) Option { return func(c *resty.Client) { c.SetBaseURL(u) } }

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option { return func(c *resty.Client) { c.SetTimeout(d) } }

// New returns a Resolver.
func New(opts ...Option) *Resolver {
	c := resty.New().
		SetBaseURL(DefaultBaseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetHeader("Accept", "application/dns-json")
	for _, fn := range opts {
		fn(c)
	}
	return &Resolver{client: c}
}

type answer struct {
	Name *string `json:"name"`
	Type *int    `json:"type"`
	Data *string `json:"data"`
}

type response struct {
	Status *int      `json:"Status"`
	Answer *[]answer `json:"Answer"`
}

// Query returns the A records of name.  An NXDOMAIN answer yields an empty
// slice.
func (r *Resolver) Query(ctx context.Context, name string) ([]string, error) {
	var out response
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetQueryParam("type", "A").
		SetResult(&out).
		ForceContentType("application/json").
		Get("/resolve")
	if err != nil {
		return nil, fmt.Errorf("resolve public DNS name %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("resolve public DNS name %s: %s", name, resp.Status())
	}
	if out.Status == nil {
		return nil, fmt.Errorf("resolve public DNS name %s: no Status in response", name)
	}

	switch *out.Status {
	case statusNXDomain:
		zap.S().Debugw("public dns name does not exist", "name", name)
		return []string{}, nil
	case statusNoError:
	default:
		return nil, fmt.Errorf("resolve public DNS name %s: Status %d", name, *out.Status)
	}
	if out.Answer == nil {
		return nil, fmt.Errorf("resolve public DNS name %s: no Answer in response", name)
	}

	addrs := []string{}
	for _, a := range *out.Answer {
		if a.Type == nil {
			return nil, fmt.Errorf("resolve public DNS name %s: answer entry is missing type", name)
		}
		if *a.Type != typeA {
			continue
		}
		if a.Data == nil {
			return nil, fmt.Errorf("resolve public DNS name %s: answer entry is missing data", name)
		}
		addrs = append(addrs, *a.Data)
	}
	zap.S().Debugw("public dns resolved", "name", name, "addrs", addrs)
	return addrs, nil
}

// ResolveA is Query that fails with ErrNoRecords on an empty result.
func (r *Resolver) ResolveA(ctx context.Context, name string) ([]string, error) {
	addrs, err := r.Query(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve public DNS name %s: %w", name, ErrNoRecords)
	}
	return addrs, nil
}
