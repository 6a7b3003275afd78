// Package controllertest provides an in-memory controller that speaks the
// DHCP and routing REST API.
package controllertest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"sdnlab/internal/controller"
)

// Request is one call received by the fake controller.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Instance is the controller-side view of a DHCP instance.
type Instance struct {
	controller.DHCPInstance
	Switches map[string]bool
}

// DPIDs returns the bound DPIDs sorted.
func (i Instance) DPIDs() []string {
	return sortedKeys(i.Switches)
}

// Gateway is the controller-side view of a gateway.
type Gateway struct {
	Name       string
	MAC        string
	IP         string
	Interfaces []controller.GatewayInterface
	Switches   map[string]bool
}

// DPIDs returns the bound DPIDs sorted.
func (g Gateway) DPIDs() []string {
	return sortedKeys(g.Switches)
}

// Controller holds the configuration state as the real controller would.
type Controller struct {
	mu        sync.Mutex
	requests  []Request
	dhcp      *controller.DHCPConfig
	routing   *controller.RoutingConfig
	instances map[string]*Instance
	gateways  map[string]*Gateway
	router    chi.Router
}

func New() *Controller {
	c := &Controller{
		instances: map[string]*Instance{},
		gateways:  map[string]*Gateway{},
	}

	r := chi.NewRouter()
	r.Use(c.record)
	r.Post(controller.RouteDHCPConfig, c.postDHCPConfig)
	r.Post(controller.RouteDHCPInstance, c.postInstance)
	r.Post(controller.RouteDHCPBind, c.postInstanceSwitches)
	r.Post(controller.RouteRouting, c.postRouting)
	r.Post(controller.RouteGateway, c.postGateway)
	r.Post(controller.RouteGatewayNamed, c.postGatewayUpdate)
	r.Delete(controller.RouteGatewayNamed, c.deleteGateway)
	c.router = r
	return c
}

func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}

// NewServer starts an httptest server backed by a fresh Controller.
func NewServer() (*Controller, *httptest.Server) {
	c := New()
	return c, httptest.NewServer(c)
}

// Requests returns a copy of every request received so far.
func (c *Controller) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

// RequestsTo returns the requests received for method and path.
func (c *Controller) RequestsTo(method, path string) []Request {
	var out []Request
	for _, req := range c.Requests() {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// DHCPConfig returns the last applied DHCP service config.
func (c *Controller) DHCPConfig() (controller.DHCPConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dhcp == nil {
		return controller.DHCPConfig{}, false
	}
	return *c.dhcp, true
}

// RoutingEnabled reports the routing service state.
func (c *Controller) RoutingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routing != nil && c.routing.Enable
}

// Instance returns a snapshot of a DHCP instance.
func (c *Controller) Instance(name string) (Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[name]
	if !ok {
		return Instance{}, false
	}
	cp := *inst
	cp.Switches = copySet(inst.Switches)
	return cp, true
}

// InstanceNames returns the defined instance names sorted.
func (c *Controller) InstanceNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.instances))
	for name := range c.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Gateway returns a snapshot of a gateway.
func (c *Controller) Gateway(name string) (Gateway, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gw, ok := c.gateways[name]
	if !ok {
		return Gateway{}, false
	}
	cp := *gw
	cp.Interfaces = append([]controller.GatewayInterface(nil), gw.Interfaces...)
	cp.Switches = copySet(gw.Switches)
	return cp, true
}

func (c *Controller) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body")
			return
		}
		c.mu.Lock()
		c.requests = append(c.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
		c.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (c *Controller) postDHCPConfig(w http.ResponseWriter, r *http.Request) {
	var cfg controller.DHCPConfig
	if !decode(w, r, &cfg) {
		return
	}
	c.mu.Lock()
	c.dhcp = &cfg
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (c *Controller) postInstance(w http.ResponseWriter, r *http.Request) {
	var inst controller.DHCPInstance
	if !decode(w, r, &inst) {
		return
	}
	if inst.Name == "" {
		writeError(w, http.StatusBadRequest, "missing instance name")
		return
	}
	c.mu.Lock()
	existing, ok := c.instances[inst.Name]
	switches := map[string]bool{}
	if ok {
		switches = existing.Switches
	}
	c.instances[inst.Name] = &Instance{DHCPInstance: inst, Switches: switches}
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, inst)
}

func (c *Controller) postInstanceSwitches(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body controller.InstanceSwitches
	if !decode(w, r, &body) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[name]
	if !ok {
		writeError(w, http.StatusNotFound, "dhcp instance "+name+" not found")
		return
	}
	for _, sw := range body.Switches {
		inst.Switches[sw.DPID] = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "switches": sortedKeys(inst.Switches)})
}

func (c *Controller) postRouting(w http.ResponseWriter, r *http.Request) {
	var cfg controller.RoutingConfig
	if !decode(w, r, &cfg) {
		return
	}
	c.mu.Lock()
	c.routing = &cfg
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (c *Controller) postGateway(w http.ResponseWriter, r *http.Request) {
	var gw controller.Gateway
	if !decode(w, r, &gw) {
		return
	}
	if gw.Name == "" {
		writeError(w, http.StatusBadRequest, "missing gateway name")
		return
	}
	c.mu.Lock()
	if _, ok := c.gateways[gw.Name]; !ok {
		c.gateways[gw.Name] = &Gateway{Name: gw.Name, Switches: map[string]bool{}}
	}
	c.gateways[gw.Name].MAC = gw.MAC
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, gw)
}

// gatewayUpdate is the union of the interface and switch update bodies.
type gatewayUpdate struct {
	Name       string                        `json:"gateway-name"`
	IP         string                        `json:"gateway-ip"`
	Interfaces []controller.GatewayInterface `json:"interfaces"`
	Switches   []controller.SwitchRef        `json:"switches"`
}

func (c *Controller) postGatewayUpdate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body gatewayUpdate
	if !decode(w, r, &body) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	gw, ok := c.gateways[name]
	if !ok {
		writeError(w, http.StatusNotFound, "gateway "+name+" not found")
		return
	}
	if body.IP != "" {
		gw.IP = body.IP
	}
	for _, intf := range body.Interfaces {
		replaced := false
		for i := range gw.Interfaces {
			if gw.Interfaces[i].Name == intf.Name {
				gw.Interfaces[i] = intf
				replaced = true
				break
			}
		}
		if !replaced {
			gw.Interfaces = append(gw.Interfaces, intf)
		}
	}
	for _, sw := range body.Switches {
		gw.Switches[sw.DPID] = true
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gateway-name": gw.Name,
		"interfaces":   gw.Interfaces,
		"switches":     sortedKeys(gw.Switches),
	})
}

func (c *Controller) deleteGateway(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.gateways[name]; !ok {
		writeError(w, http.StatusNotFound, "gateway "+name+" not found")
		return
	}
	delete(c.gateways, name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
