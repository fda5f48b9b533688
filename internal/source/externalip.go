package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/HerbHall/hostpanel/internal/version"
)

// maxIPResponseBytes caps how much of the echo service response is read.
const maxIPResponseBytes = 64 << 10

// ExternalIP reports the host's public IPv4 address with the last two
// octets masked. Lookups are rate limited; between lookups the last
// successful value is reused.
type ExternalIP struct {
	client  *http.Client
	url     string
	limiter *rate.Limiter

	mu     sync.Mutex
	cached string
}

// NewExternalIP returns the external_ip source querying url, an echo service
// answering {"ip": "..."}. At most one lookup is made per refresh interval;
// refresh <= 0 disables caching.
func NewExternalIP(client *http.Client, url string, refresh time.Duration) *ExternalIP {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	limit := rate.Inf
	if refresh > 0 {
		limit = rate.Every(refresh)
	}
	return &ExternalIP{
		client:  client,
		url:     url,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (e *ExternalIP) Name() string     { return "external_ip" }
func (e *ExternalIP) Sentinel() string { return SentinelIP }

func (e *ExternalIP) Acquire(ctx context.Context) Field {
	e.mu.Lock()
	cached := e.cached
	allowed := e.limiter.Allow()
	e.mu.Unlock()

	if cached != "" && !allowed {
		return okField(e.Name(), cached, cached)
	}

	masked, err := e.lookup(ctx)
	e.mu.Lock()
	e.cached = masked
	e.mu.Unlock()
	if err != nil {
		return Unavailable(e, err)
	}
	return okField(e.Name(), masked, masked)
}

// lookup fetches and masks the address. It returns "" on any error so a
// failure also clears the cached value.
func (e *ExternalIP) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIPResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return MaskIPv4(body.IP)
}

// MaskIPv4 keeps the first two octets of an IPv4 address and replaces the
// rest with "X.X", e.g. 203.0.113.77 becomes 203.0.X.X.
func MaskIPv4(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", ip, err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return "", errors.New("address is not IPv4: " + ip)
	}
	octets := addr.As4()
	return fmt.Sprintf("%d.%d.X.X", octets[0], octets[1]), nil
}
