package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultBaseURL = "https://restapi.amap.com/v3/geocode/geo"

// Result 一次地理编码命中的坐标
type Result struct {
	Longitude        float64
	Latitude         float64
	FormattedAddress string
}

// Geocoder 地址到坐标的查询接口
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Client 高德地理编码 API 客户端
type Client struct {
	key     string
	baseURL string
	client  *http.Client
}

// NewClient 创建一个新的高德客户端
func NewClient(key string) *Client {
	return &Client{
		key:     key,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
	}
}

// NewClientWithBaseURL 指定服务地址，测试用
func NewClientWithBaseURL(key, baseURL string) *Client {
	c := NewClient(key)
	c.baseURL = baseURL
	return c
}

var _ Geocoder = (*Client)(nil)

// geocodeResponse 高德地理编码响应。status == "1" 表示成功。
type geocodeResponse struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Geocodes []struct {
		Location         string `json:"location"` // "lng,lat"
		FormattedAddress string `json:"formatted_address"`
	} `json:"geocodes"`
}

// Geocode 查询地址坐标。仅接受成功状态且结果非空的响应，取第一条。
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}

	q := url.Values{}
	q.Set("key", c.key)
	q.Set("address", address)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amap api error (status %d): %s", res.StatusCode, string(body))
	}

	var geoResp geocodeResponse
	if err := json.Unmarshal(body, &geoResp); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}

	if geoResp.Status != "1" || len(geoResp.Geocodes) == 0 {
		return nil, fmt.Errorf("no geocode for %q (info: %s)", address, geoResp.Info)
	}

	first := geoResp.Geocodes[0]
	lng, lat, err := parseLocation(first.Location)
	if err != nil {
		return nil, fmt.Errorf("bad location %q: %w", first.Location, err)
	}
	if !IsValidCoordinate(lng, lat) {
		return nil, fmt.Errorf("out-of-range location %q", first.Location)
	}

	return &Result{
		Longitude:        lng,
		Latitude:         lat,
		FormattedAddress: first.FormattedAddress,
	}, nil
}

// parseLocation 解析 "lng,lat" 形式的坐标串
func parseLocation(loc string) (lng, lat float64, err error) {
	lngStr, latStr, ok := strings.Cut(loc, ",")
	if !ok {
		return 0, 0, fmt.Errorf("missing comma")
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return 0, 0, err
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, err
	}
	return lng, lat, nil
}
