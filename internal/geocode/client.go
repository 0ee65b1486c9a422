// Package geocode はNominatim互換APIを使った住所から座標への変換を提供する。
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/emerald/internal/spatial"
)

const (
	// DefaultEndpoint は公開Nominatimの検索エンドポイント。
	DefaultEndpoint = "https://nominatim.openstreetmap.org/search"
	// maxBodyBytes はレスポンスボディの読み取り上限。
	maxBodyBytes = 1 << 20
)

var (
	// ErrNoResult は住所に一致する地点がない場合のエラー。
	ErrNoResult = errors.New("geocoder returned no result")
	// ErrInvalidCoordinates はAPIが解釈できない座標を返した場合のエラー。
	ErrInvalidCoordinates = errors.New("geocoder returned invalid coordinates")
)

// HTTPDoer はHTTPリクエストを実行するインターフェース。テストで差し替える。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config はClientの設定。
type Config struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	// Interval はリクエスト間隔の下限。Nominatimの利用規約では1秒。
	Interval time.Duration
}

type result struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Client はNominatim APIのクライアント。
// 利用規約に従いUser-Agentを付与し、リクエスト頻度を制限する。
type Client struct {
	httpClient HTTPDoer
	logger     *slog.Logger
	endpoint   string
	userAgent  string
	limiter    *rate.Limiter
	observe    func(time.Duration)
}

// NewClient はClientを生成する。httpClientがnilの場合はTimeout付きのクライアントを使う。
func NewClient(cfg Config, httpClient HTTPDoer, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// OnLatency はリクエスト毎の所要時間を受け取る関数を登録する。
func (c *Client) OnLatency(fn func(time.Duration)) {
	c.observe = fn
}

// Geocode は住所を座標に変換する。
// 一致がない場合は末尾の要素を削った住所で再検索する。
func (c *Client) Geocode(ctx context.Context, address string) (spatial.GeoPoint, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return spatial.GeoPoint{}, ErrNoResult
	}

	variations := addressFallbacks(address)
	for i, v := range variations {
		p, err := c.lookup(ctx, v)
		if err == nil {
			if i > 0 {
				c.logger.Info("geocoded using fallback address",
					slog.String("address", address),
					slog.String("fallback", v),
				)
			}
			return p, nil
		}
		if !errors.Is(err, ErrNoResult) {
			return spatial.GeoPoint{}, err
		}
	}

	c.logger.Warn("geocoder found no result",
		slog.String("address", address),
		slog.Int("variations_tried", len(variations)),
	)
	return spatial.GeoPoint{}, ErrNoResult
}

// addressFallbacks はカンマ区切りの住所から、末尾を順に削った候補を返す。
func addressFallbacks(address string) []string {
	var parts []string
	for _, part := range strings.Split(address, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for n := len(parts); n > 0; n-- {
		v := strings.Join(parts[:n], ", ")
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (c *Client) lookup(ctx context.Context, address string) (spatial.GeoPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("geocoder rate limit wait: %w", err)
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("failed to parse geocoder endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("failed to create geocoder request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observe != nil {
		c.observe(time.Since(start))
	}
	if err != nil {
		c.logger.Error("geocoder request failed",
			slog.String("error", err.Error()),
		)
		return spatial.GeoPoint{}, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("geocoder returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return spatial.GeoPoint{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("failed to read geocoder response: %w", err)
	}

	var results []result
	if err := json.Unmarshal(body, &results); err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if len(results) == 0 {
		return spatial.GeoPoint{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoordinates, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoordinates, results[0].Lon)
	}

	p := spatial.GeoPoint{Longitude: lon, Latitude: lat}
	if err := p.Validate(); err != nil {
		return spatial.GeoPoint{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return p, nil
}
