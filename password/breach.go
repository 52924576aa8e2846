package password

import (
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec // mandated by the range API, not used for storage
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultPwnedEndpoint is the public Pwned Passwords range API.
	DefaultPwnedEndpoint = "https://api.pwnedpasswords.com"

	pwnedPrefixLength = 5
)

// PwnedConfig tunes the breach lookup client.
type PwnedConfig struct {
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// PwnedClient implements BreachChecker with k-anonymity: only the first five hex characters
// of the password's SHA-1 digest leave the process.
type PwnedClient struct {
	endpoint  string
	timeout   time.Duration
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewPwnedClient builds a client. A nil httpClient uses a dedicated client with the
// configured timeout.
func NewPwnedClient(cfg PwnedConfig, httpClient *http.Client) *PwnedClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultPwnedEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lscauth-breach-check"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &PwnedClient{
		endpoint:  strings.TrimSuffix(cfg.Endpoint, "/"),
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// BreachCount returns how many times the password appears in the corpus.
func (c *PwnedClient) BreachCount(ctx context.Context, password string) (int, error) {
	if c == nil {
		return 0, errors.New("nil breach client")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("breach lookup throttled: %w", err)
	}

	sum := sha1.Sum([]byte(password)) //nolint:gosec
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:pwnedPrefixLength], digest[pwnedPrefixLength:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/range/"+prefix, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("breach lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("breach lookup status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		candidate, countText, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(candidate, suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countText))
		if err != nil {
			return 0, fmt.Errorf("breach lookup malformed count: %w", err)
		}
		return count, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("breach lookup read: %w", err)
	}

	return 0, nil
}
