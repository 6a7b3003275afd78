package domain

import (
	"fmt"
	"time"
)

// Lab records one realized topology on this machine
type Lab struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CreatedAt  string   `json:"created_at"`
	Controller string   `json:"controller"`
	Hosts      []Host   `json:"hosts"`
	Bridges    []Bridge `json:"bridges"`
	Veths      []Veth   `json:"veths"`
	Started    bool     `json:"started"`
}

// Host is an emulated end host living in its own namespace.
type Host struct {
	Name      string     `json:"name"`
	Interface string     `json:"interface"`
	Namespace *Namespace `json:"namespace"`
}

func NewLab(name, controller string) *Lab {
	return &Lab{
		Name:       name,
		Controller: controller,
		CreatedAt:  time.Now().Format(time.RFC3339),
		Hosts:      []Host{},
		Bridges:    []Bridge{},
		Veths:      []Veth{},
	}
}

// NamespaceName is the netns name of host in the lab.
func NamespaceName(lab, host string) string {
	return "sdnlab-" + lab + "-" + host
}

func (l *Lab) Host(name string) (*Host, error) {
	for i := range l.Hosts {
		if l.Hosts[i].Name == name {
			return &l.Hosts[i], nil
		}
	}
	return nil, fmt.Errorf("lab %s has no host %s", l.Name, name)
}

func (l *Lab) Bridge(name string) (*Bridge, error) {
	for i := range l.Bridges {
		if l.Bridges[i].Name == name {
			return &l.Bridges[i], nil
		}
	}
	return nil, fmt.Errorf("lab %s has no switch %s", l.Name, name)
}

// Namespace returns the namespace record of the named host.
func (l *Lab) Namespace(host string) (*Namespace, error) {
	h, err := l.Host(host)
	if err != nil {
		return nil, err
	}
	if h.Namespace == nil {
		return nil, fmt.Errorf("host %s has no namespace", host)
	}
	return h.Namespace, nil
}
