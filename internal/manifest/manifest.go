// Package manifest parses and validates the deploy file that describes the
// single container the daemon keeps running.
package manifest

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTag       = "latest"
	defaultBranch    = "master"
	defaultSleepTime = 10
	defaultIPAddress = "127.0.0.1"
	defaultPort      = 8080

	// PWDPlaceholder in a mount host path is replaced with the daemon's
	// working directory.
	PWDPlaceholder = "$PWD"
)

// Manifest is an immutable snapshot of the deploy file. A new value replaces
// the old one wholesale on reload.
type Manifest struct {
	Image         Image     `yaml:"image"`
	Container     Container `yaml:"container"`
	Branch        Branch    `yaml:"branch"`
	Heartbeat     Heartbeat `yaml:"heartbeat"`
	ValidationKey *string   `yaml:"validation_key"`
	Server        Server    `yaml:"server"`
}

// Image identifies the image to pull.
type Image struct {
	Name string `yaml:"name"`
	Tag  string `yaml:"tag"`
}

// Ref returns the name:tag reference.
func (i Image) Ref() string {
	return i.Name + ":" + i.Tag
}

// Container describes how to run the managed container.
type Container struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Ports   []Port   `yaml:"ports"`
	Mounts  []Mount  `yaml:"mounts"`
}

type Port struct {
	Host   int `yaml:"host"`
	Target int `yaml:"target"`
}

type Mount struct {
	Host   string `yaml:"host"`
	Target string `yaml:"target"`
}

// HostPath resolves the $PWD placeholder against cwd.
func (m Mount) HostPath(cwd string) string {
	return strings.ReplaceAll(m.Host, PWDPlaceholder, cwd)
}

// Branch selects which CI pipelines may trigger a redeploy.
type Branch struct {
	Name           string `yaml:"name"`
	BuildOnFailure bool   `yaml:"build_on_failure"`
}

// Heartbeat configures the reconciliation interval and the optional
// endpoint notified while the container is healthy.
type Heartbeat struct {
	SleepTime int    `yaml:"sleep_time"`
	Endpoint  string `yaml:"endpoint"`
}

// Interval is the poll period.
func (h Heartbeat) Interval() time.Duration {
	return time.Duration(h.SleepTime) * time.Second
}

type Server struct {
	IPAddress string `yaml:"ip_address"`
	Port      int    `yaml:"port"`
}

// Addr returns the listen address for the HTTP surface.
func (s Server) Addr() string {
	return net.JoinHostPort(s.IPAddress, strconv.Itoa(s.Port))
}

// Parse reads, decodes and validates the deploy file at path.
func Parse(path string) (*Manifest, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deploy file: %w", err)
	}
	m, err := ParseBytes(contents)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseBytes decodes and validates a deploy file held in memory.
func ParseBytes(contents []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("decode deploy file: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// validate checks required fields and fills defaults. It runs before the
// value is published, so callers never see a partially defaulted manifest.
func (m *Manifest) validate() error {
	if strings.TrimSpace(m.Container.Name) == "" {
		return fmt.Errorf("validation error: container name can not be empty")
	}
	if strings.TrimSpace(m.Image.Name) == "" {
		return fmt.Errorf("validation error: image name can not be empty")
	}
	if m.Image.Tag == "" {
		m.Image.Tag = defaultTag
	}
	if m.Branch.Name == "" {
		m.Branch.Name = defaultBranch
	}
	if m.Heartbeat.SleepTime < 0 {
		return fmt.Errorf("validation error: heartbeat sleep_time can not be negative")
	}
	if m.Heartbeat.SleepTime == 0 {
		m.Heartbeat.SleepTime = defaultSleepTime
	}
	for i, p := range m.Container.Ports {
		if !validPort(p.Host) || !validPort(p.Target) {
			return fmt.Errorf("validation error: container port %d out of range (host=%d target=%d)", i, p.Host, p.Target)
		}
	}
	for i, mnt := range m.Container.Mounts {
		if strings.TrimSpace(mnt.Host) == "" || strings.TrimSpace(mnt.Target) == "" {
			return fmt.Errorf("validation error: container mount %d requires host and target", i)
		}
	}
	if m.Server.IPAddress == "" {
		m.Server.IPAddress = defaultIPAddress
	}
	if m.Server.Port == 0 {
		m.Server.Port = defaultPort
	}
	if !validPort(m.Server.Port) {
		return fmt.Errorf("validation error: server port %d out of range", m.Server.Port)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
