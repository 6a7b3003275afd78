package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sdnlab/internal/metrics"
	"sdnlab/internal/topology"
)

// REST routes, used as metric labels.
const (
	RouteDHCPConfig   = "/wm/dhcp/config"
	RouteDHCPInstance = "/wm/dhcp/instance"
	RouteDHCPBind     = "/wm/dhcp/instance/{name}"
	RouteRouting      = "/wm/routing/config"
	RouteGateway      = "/wm/routing/gateway"
	RouteGatewayNamed = "/wm/routing/gateway/{name}"
)

// Client issues typed requests against the controller REST API. Every call
// waits for the response before returning; there are no retries.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Registry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(r *metrics.Registry) Option {
	return func(c *Client) { c.metrics = r }
}

// NewClient creates a client for the controller at baseURL, for example
// http://192.168.56.1:8080.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the controller base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EnableDHCP configures the global DHCP service.
func (c *Client) EnableDHCP(ctx context.Context, cfg DHCPConfig) (*Result, error) {
	return c.do(ctx, http.MethodPost, RouteDHCPConfig, RouteDHCPConfig, cfg, nil)
}

// CreateDHCPInstance defines a DHCP instance.
func (c *Client) CreateDHCPInstance(ctx context.Context, inst DHCPInstance) (*Result, error) {
	return c.do(ctx, http.MethodPost, RouteDHCPInstance, RouteDHCPInstance, inst, nil)
}

// BindSwitchesToInstance associates switches with an existing instance.
func (c *Client) BindSwitchesToInstance(ctx context.Context, name string, dpids []topology.DPID) (*Result, error) {
	body := InstanceSwitches{Switches: SwitchRefs(dpids)}
	return c.do(ctx, http.MethodPost, RouteDHCPBind, RouteDHCPInstance+"/"+url.PathEscape(name), body, ErrUnknownInstance)
}

// SetRouting enables or disables the L3 routing service.
func (c *Client) SetRouting(ctx context.Context, enable bool) (*Result, error) {
	return c.do(ctx, http.MethodPost, RouteRouting, RouteRouting, RoutingConfig{Enable: enable}, nil)
}

// CreateGateway creates a virtual gateway.
func (c *Client) CreateGateway(ctx context.Context, gw Gateway) (*Result, error) {
	return c.do(ctx, http.MethodPost, RouteGateway, RouteGateway, gw, nil)
}

// AddGatewayInterfaces attaches interfaces, in order, to a gateway.
func (c *Client) AddGatewayInterfaces(ctx context.Context, name string, intfs []GatewayInterface) (*Result, error) {
	body := GatewayInterfaces{Interfaces: intfs}
	return c.do(ctx, http.MethodPost, RouteGatewayNamed, gatewayPath(name), body, ErrUnknownGateway)
}

// BindSwitchesToGateway associates switches with a gateway.
func (c *Client) BindSwitchesToGateway(ctx context.Context, name, gatewayIP string, dpids []topology.DPID) (*Result, error) {
	body := GatewaySwitches{Name: name, IP: gatewayIP, Switches: SwitchRefs(dpids)}
	return c.do(ctx, http.MethodPost, RouteGatewayNamed, gatewayPath(name), body, ErrUnknownGateway)
}

// DeleteGateway removes a gateway and everything attached to it.
func (c *Client) DeleteGateway(ctx context.Context, name string) (*Result, error) {
	return c.do(ctx, http.MethodDelete, RouteGatewayNamed, gatewayPath(name), nil, ErrUnknownGateway)
}

func gatewayPath(name string) string {
	return RouteGateway + "/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, method, route, path string, payload any, notFound error) (*Result, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordControllerRequest(method, route, "error", time.Since(start))
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordControllerRequest(method, route, "error", time.Since(start))
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}
	c.metrics.RecordControllerRequest(method, route, strconv.Itoa(resp.StatusCode), time.Since(start))

	result := &Result{
		StatusCode: resp.StatusCode,
		Reason:     strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "),
		Body:       raw,
	}
	c.log.Debug("Controller call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", raw),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &RejectedError{Method: method, Path: path, Result: result}
		if resp.StatusCode == http.StatusNotFound {
			rejected.kind = notFound
		}
		return result, rejected
	}
	return result, nil
}
