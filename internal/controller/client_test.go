package controller_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sdnlab/internal/controller"
	"sdnlab/internal/controller/controllertest"
	"sdnlab/internal/metrics"
	"sdnlab/internal/topology"
)

func newClient(t *testing.T) (*controller.Client, *controllertest.Controller) {
	fake, srv := controllertest.NewServer()
	t.Cleanup(srv.Close)
	return controller.NewClient(srv.URL, controller.WithLogger(zaptest.NewLogger(t))), fake
}

func TestWireEncoding(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	_, err := client.EnableDHCP(ctx, controller.DHCPConfig{Enable: true, LeaseGCPeriod: 10})
	require.NoError(t, err)
	_, err = client.CreateDHCPInstance(ctx, controller.DHCPInstance{
		Name:         "mininet-dhcp-1",
		StartIP:      "10.0.0.101",
		EndIP:        "10.0.0.200",
		ServerID:     "10.0.0.2",
		ServerMAC:    "aa:bb:cc:dd:ee:ff",
		RouterIP:     "10.0.0.1",
		BroadcastIP:  "10.0.0.255",
		SubnetMask:   "255.255.255.0",
		LeaseTime:    60,
		IPForwarding: true,
		DomainName:   "mininet-domain-name",
	})
	require.NoError(t, err)
	_, err = client.BindSwitchesToInstance(ctx, "mininet-dhcp-1", []topology.DPID{1, 2})
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 3)

	expected := []map[string]any{
		{"enable": "true", "lease-gc-period": "10", "dynamic-lease": "false"},
		{
			"name":          "mininet-dhcp-1",
			"start-ip":      "10.0.0.101",
			"end-ip":        "10.0.0.200",
			"server-id":     "10.0.0.2",
			"server-mac":    "aa:bb:cc:dd:ee:ff",
			"router-ip":     "10.0.0.1",
			"broadcast-ip":  "10.0.0.255",
			"subnet-mask":   "255.255.255.0",
			"lease-time":    "60",
			"ip-forwarding": "true",
			"domain-name":   "mininet-domain-name",
		},
		{"switches": []any{map[string]any{"dpid": "1"}, map[string]any{"dpid": "2"}}},
	}
	paths := []string{"/wm/dhcp/config", "/wm/dhcp/instance", "/wm/dhcp/instance/mininet-dhcp-1"}
	for i, req := range reqs {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, paths[i], req.Path)
		var got map[string]any
		require.NoError(t, json.Unmarshal(req.Body, &got))
		if diff := cmp.Diff(expected[i], got); diff != "" {
			t.Errorf("request %d body mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestBindBeforeCreate(t *testing.T) {
	client, _ := newClient(t)

	res, err := client.BindSwitchesToInstance(context.Background(), "missing", []topology.DPID{1})
	assert.ErrorIs(t, err, controller.ErrUnknownInstance)
	var rejected *controller.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusNotFound, rejected.Result.StatusCode)
	require.NotNil(t, res)
	assert.Contains(t, string(res.Body), "not found")
}

func TestGatewayBeforeCreate(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	_, err := client.AddGatewayInterfaces(ctx, "gw", nil)
	assert.ErrorIs(t, err, controller.ErrUnknownGateway)
	_, err = client.BindSwitchesToGateway(ctx, "gw", "127.0.0.1", []topology.DPID{1})
	assert.ErrorIs(t, err, controller.ErrUnknownGateway)
	_, err = client.DeleteGateway(ctx, "gw")
	assert.ErrorIs(t, err, controller.ErrUnknownGateway)
}

func TestEnableDHCPIdempotent(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()
	cfg := controller.DHCPConfig{Enable: true, LeaseGCPeriod: 10}

	_, err := client.EnableDHCP(ctx, cfg)
	require.NoError(t, err)
	once, ok := fake.DHCPConfig()
	require.True(t, ok)

	_, err = client.EnableDHCP(ctx, cfg)
	require.NoError(t, err)
	twice, ok := fake.DHCPConfig()
	require.True(t, ok)

	assert.Equal(t, once, twice)
}

func TestGatewayInterfaceOrder(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	_, err := client.CreateGateway(ctx, controller.Gateway{Name: "gw", MAC: "aa:bb:cc:dd:ee:ff"})
	require.NoError(t, err)

	intfs := []controller.GatewayInterface{
		{Name: "interface-3", IP: "30.0.0.1", Mask: "255.255.255.0"},
		{Name: "interface-1", IP: "10.0.0.1", Mask: "255.255.255.0"},
		{Name: "interface-2", IP: "20.0.0.1", Mask: "255.255.255.0"},
	}
	_, err = client.AddGatewayInterfaces(ctx, "gw", intfs)
	require.NoError(t, err)
	_, err = client.BindSwitchesToGateway(ctx, "gw", "127.0.0.1", []topology.DPID{2, 1})
	require.NoError(t, err)

	gw, ok := fake.Gateway("gw")
	require.True(t, ok)
	assert.Equal(t, intfs, gw.Interfaces)
	assert.Equal(t, []string{"1", "2"}, gw.DPIDs())
	assert.Equal(t, "127.0.0.1", gw.IP)

	_, err = client.DeleteGateway(ctx, "gw")
	require.NoError(t, err)
	_, ok = fake.Gateway("gw")
	assert.False(t, ok)
	require.Len(t, fake.RequestsTo(http.MethodDelete, "/wm/routing/gateway/gw"), 1)
	assert.Empty(t, fake.RequestsTo(http.MethodDelete, "/wm/routing/gateway/gw")[0].Body)
}

func TestRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	reg := metrics.NewRegistry()
	client := controller.NewClient(srv.URL, controller.WithMetrics(reg))
	res, err := client.SetRouting(context.Background(), true)

	var rejected *controller.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.False(t, errors.Is(err, controller.ErrUnknownGateway))
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "Internal Server Error", res.Reason)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		reg.ControllerRequestsTotal.WithLabelValues(http.MethodPost, controller.RouteRouting, "500")))
}

func TestRejectedKeepsReasonPhrase(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	served := make(chan struct{})
	go func() {
		defer close(served)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, req.Body)
		_, _ = io.WriteString(conn, "HTTP/1.1 503 DHCP Service Disabled\r\n"+
			"Content-Length: 2\r\nConnection: close\r\n\r\n{}")
	}()

	client := controller.NewClient("http://" + ln.Addr().String())
	res, err := client.EnableDHCP(context.Background(), controller.DHCPConfig{Enable: true})
	<-served

	var rejected *controller.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "DHCP Service Disabled", res.Reason)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := controller.NewClient(url)
	res, err := client.EnableDHCP(context.Background(), controller.DHCPConfig{Enable: true})
	assert.Nil(t, res)
	var transport *controller.TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, "/wm/dhcp/config", transport.Path)
	assert.False(t, transport.Timeout())
}

func TestTransportTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := controller.NewClient(srv.URL, controller.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := client.SetRouting(context.Background(), true)
	var transport *controller.TransportError
	require.ErrorAs(t, err, &transport)
	assert.True(t, transport.Timeout())
}
