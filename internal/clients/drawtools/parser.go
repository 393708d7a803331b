package drawtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// ItemType is the draw-tools layer kind
type ItemType string

const (
	Polyline ItemType = "polyline"
	Polygon  ItemType = "polygon"
	Circle   ItemType = "circle"
	Marker   ItemType = "marker"
)

// Item is one entry of a draw-tools export
type Item struct {
	Type    ItemType    `json:"type"`
	LatLngs []geo.Point `json:"latLngs,omitempty"`
	LatLng  *geo.Point  `json:"latLng,omitempty"`
	Radius  float64     `json:"radius,omitempty"`
	Color   string      `json:"color,omitempty"`
}

// maxPlanBytes bounds how much of a remote plan is read
const maxPlanBytes = 8 << 20

// maxRedirects bounds redirect chains when fetching a plan
const maxRedirects = 5

// ErrURLNotAllowed is returned for plan URLs the server refuses to fetch:
// non-https schemes, hosts off the allowlist, and non-public addresses.
var ErrURLNotAllowed = errors.New("plan url not allowed")

// HTTPDoer is the subset of *http.Client used to fetch plans
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Parser turns draw-tools exports into shapes
type Parser struct {
	httpClient   HTTPDoer
	allowedHosts map[string]bool
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithAllowedHosts restricts remote plans to the given host names. With no
// hosts configured any public https host is accepted.
func WithAllowedHosts(hosts ...string) ParserOption {
	return func(p *Parser) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				p.allowedHosts[h] = true
			}
		}
	}
}

// NewParser creates a parser whose HTTP client only connects to public
// addresses and re-checks every redirect target.
func NewParser(opts ...ParserOption) *Parser {
	p := newParser(nil, opts...)
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: denyNonPublic,
	}
	p.httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return p.CheckURL(req.URL)
		},
	}
	return p
}

// NewParserWithHTTPDoer creates a parser using the given HTTP client
func NewParserWithHTTPDoer(doer HTTPDoer, opts ...ParserOption) *Parser {
	return newParser(doer, opts...)
}

func newParser(doer HTTPDoer, opts ...ParserOption) *Parser {
	p := &Parser{httpClient: doer, allowedHosts: make(map[string]bool)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckURL rejects plan URLs that are not https or whose host is off the allowlist
func (p *Parser) CheckURL(u *url.URL) error {
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be https", ErrURLNotAllowed)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrURLNotAllowed)
	}
	if len(p.allowedHosts) > 0 && !p.allowedHosts[host] {
		return fmt.Errorf("%w: host %s is not on the allowlist", ErrURLNotAllowed, host)
	}
	if ip := net.ParseIP(host); ip != nil && !IsPublicIP(ip) {
		return fmt.Errorf("%w: %s is not a public address", ErrURLNotAllowed, host)
	}
	return nil
}

// IsPublicIP reports whether ip is globally routable
func IsPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	// Carrier-grade NAT, 100.64.0.0/10
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 100 && ip4[1]&0xc0 == 64 {
		return false
	}
	return true
}

// denyNonPublic runs after DNS resolution, so names resolving to internal
// addresses are refused as well.
func denyNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLNotAllowed, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !IsPublicIP(ip) {
		return fmt.Errorf("%w: %s is not a public address", ErrURLNotAllowed, host)
	}
	return nil
}

// Parse decodes a draw-tools export. Markers and circles have no edges and are skipped.
func (p *Parser) Parse(data []byte) ([]geo.Shape, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode draw-tools export: %w", err)
	}
	return p.ShapesFromItems(items)
}

// ShapesFromItems converts decoded items to shapes
func (p *Parser) ShapesFromItems(items []Item) ([]geo.Shape, error) {
	shapes := make([]geo.Shape, 0, len(items))
	for i, item := range items {
		var closed bool
		switch item.Type {
		case Polyline:
			closed = false
		case Polygon:
			closed = true
		case Circle, Marker:
			continue
		default:
			return nil, fmt.Errorf("item %d: unsupported draw-tools type %q", i, item.Type)
		}

		shape, err := geo.NewShape(item.LatLngs, closed)
		if err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i, item.Type, err)
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}

// Fetch downloads and parses a draw-tools export published at rawURL
func (p *Parser) Fetch(ctx context.Context, rawURL string) ([]geo.Shape, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrURLNotAllowed, err)
	}
	if err := p.CheckURL(u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download plan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d downloading plan from %s", resp.StatusCode, u.Host)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlanBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read plan response: %w", err)
	}

	return p.Parse(data)
}

// Export encodes shapes back into the draw-tools format
func Export(shapes []geo.Shape) ([]byte, error) {
	items := make([]Item, 0, len(shapes))
	for _, shape := range shapes {
		item := Item{Type: Polyline, LatLngs: shape.Points}
		if shape.Closed {
			item.Type = Polygon
		}
		items = append(items, item)
	}
	return json.Marshal(items)
}
