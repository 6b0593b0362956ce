// Package config loads the declarative container configuration.
//
// Configuration is pure data consumed once at startup. The container list is
// ordered: a container may only link to containers declared before it, which
// keeps the graph acyclic and already topologically sorted — every engine in
// the core relies on that invariant, so it is enforced here, fatally, before
// anything else runs.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/matthieugusmini/docker-steward/internal/steward"
)

const (
	defaultSleepBeforeTest  = 500 * time.Millisecond
	defaultStartupGraceTime = 2 * time.Second

	defaultStateDir  = "/var/lib/steward"
	defaultLockFile  = "/var/lock/steward.lock"
	defaultStatusDir = "/var/run/steward_status"
)

// Config is the loaded and validated configuration.
type Config struct {
	// StateDir holds the instance-identity records.
	StateDir string

	// LockFile is the mutual-exclusion lock path.
	LockFile string

	// StatusDir receives the monitoring history and HTML status page.
	StatusDir string

	// MailFrom and MailTo address change notifications.
	MailFrom string
	MailTo   string

	// Containers is the full graph in declaration order.
	Containers []*steward.Container

	byName map[string]*steward.Container
}

// Select resolves container names against the configuration, keeping the
// configuration order regardless of the order given. An empty selector means
// all containers.
func (c *Config) Select(names []string) ([]*steward.Container, error) {
	if len(names) == 0 {
		return c.Containers, nil
	}

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := c.byName[name]; !ok {
			return nil, &steward.Error{
				Code:    steward.ErrorCodeUnknownContainer,
				Message: fmt.Sprintf("unknown container name: %s", name),
			}
		}
		requested[name] = true
	}

	var selected []*steward.Container
	for _, ctr := range c.Containers {
		if requested[ctr.Name] {
			selected = append(selected, ctr)
		}
	}
	return selected, nil
}

type file struct {
	StateDir   string            `yaml:"state_dir"`
	LockFile   string            `yaml:"lock_file"`
	StatusDir  string            `yaml:"status_dir"`
	MailFrom   string            `yaml:"mail_from"`
	MailTo     string            `yaml:"mail_to"`
	Containers []containerConfig `yaml:"containers"`
}

type containerConfig struct {
	Name             string       `yaml:"name"`
	Image            string       `yaml:"image"`
	Path             string       `yaml:"path"`
	OnlyBuild        bool         `yaml:"only_build"`
	Links            []string     `yaml:"links"`
	AliasTags        []string     `yaml:"alias_tags"`
	SleepBeforeTest  *duration    `yaml:"sleep_before_test"`
	StartupGraceTime *duration    `yaml:"startup_grace_time"`
	UpdateCheck      string       `yaml:"update_check"`
	Env              []string     `yaml:"env"`
	Memory           string       `yaml:"memory"`
	Volumes          []string     `yaml:"volumes"`
	Ports            []portConfig `yaml:"ports"`
	Tests            []testConfig `yaml:"tests"`
}

type portConfig struct {
	Host      int    `yaml:"host"`
	Container int    `yaml:"container"`
	HostAddr  string `yaml:"host_addr"`
	UDP       bool   `yaml:"udp"`
	// Test controls whether publishing the port registers a TCP health
	// test for it. Defaults to true; ignored for UDP.
	Test *bool `yaml:"test"`
}

type testConfig struct {
	Type string `yaml:"type"`

	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ExpectData *bool  `yaml:"expect_data"`

	URL       string `yaml:"url"`
	VerifyTLS *bool  `yaml:"verify_tls"`

	Command string `yaml:"command"`

	Timeout *duration `yaml:"timeout"`
}

// duration lets YAML carry values like "500ms" or "2s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

// Load reads, parses and validates the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open configuration: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses and validates a configuration document.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	cfg := &Config{
		StateDir:  orDefault(doc.StateDir, defaultStateDir),
		LockFile:  orDefault(doc.LockFile, defaultLockFile),
		StatusDir: orDefault(doc.StatusDir, defaultStatusDir),
		MailFrom:  orDefault(doc.MailFrom, "root"),
		MailTo:    orDefault(doc.MailTo, "root"),
		byName:    make(map[string]*steward.Container, len(doc.Containers)),
	}

	for i, cc := range doc.Containers {
		ctr, err := buildContainer(cc, cfg.byName)
		if err != nil {
			return nil, fmt.Errorf("container %d (%s): %w", i, cc.Name, err)
		}
		cfg.Containers = append(cfg.Containers, ctr)
		cfg.byName[ctr.Name] = ctr
	}

	if len(cfg.Containers) == 0 {
		return nil, fmt.Errorf("configuration defines no containers")
	}
	return cfg, nil
}

// buildContainer validates one entry against the containers declared so far.
// Only earlier containers are eligible link targets: a duplicate name or a
// forward reference is a configuration error.
func buildContainer(cc containerConfig, earlier map[string]*steward.Container) (*steward.Container, error) {
	if cc.Name == "" {
		return nil, fmt.Errorf("container without a name")
	}
	if _, dup := earlier[cc.Name]; dup {
		return nil, fmt.Errorf("duplicate container name %q", cc.Name)
	}

	ctr := &steward.Container{
		Name:               cc.Name,
		ImageRef:           cc.Image,
		BuildPath:          cc.Path,
		OnlyBuild:          cc.OnlyBuild,
		AliasTags:          cc.AliasTags,
		UpdateCheckCommand: cc.UpdateCheck,
		Env:                cc.Env,
		SleepBeforeTest:    defaultSleepBeforeTest,
		StartupGraceTime:   defaultStartupGraceTime,
	}
	if ctr.ImageRef == "" && (cc.Path != "" || !cc.OnlyBuild) {
		ctr.ImageRef = cc.Name + ":latest"
	}
	if cc.SleepBeforeTest != nil {
		ctr.SleepBeforeTest = time.Duration(*cc.SleepBeforeTest)
	}
	if cc.StartupGraceTime != nil {
		ctr.StartupGraceTime = time.Duration(*cc.StartupGraceTime)
	}

	if cc.Memory != "" {
		mem, err := units.RAMInBytes(cc.Memory)
		if err != nil {
			return nil, fmt.Errorf("invalid memory limit %q: %w", cc.Memory, err)
		}
		ctr.Memory = mem
	}

	for _, link := range cc.Links {
		target, ok := earlier[link]
		if !ok {
			return nil, fmt.Errorf("link %q must reference a container declared earlier", link)
		}
		ctr.Links = append(ctr.Links, target)
	}

	for _, v := range cc.Volumes {
		vol, err := parseVolume(v)
		if err != nil {
			return nil, err
		}
		ctr.Volumes = append(ctr.Volumes, vol)
	}

	for _, p := range cc.Ports {
		if p.Host == 0 || p.Container == 0 {
			return nil, fmt.Errorf("port binding needs both host and container ports")
		}
		ctr.Ports = append(ctr.Ports, steward.PortBinding{
			HostAddr:      p.HostAddr,
			HostPort:      p.Host,
			ContainerPort: p.Container,
			UDP:           p.UDP,
		})
		// A published TCP port implies a reachability test unless opted out.
		if !p.UDP && (p.Test == nil || *p.Test) {
			ctr.Tests = append(ctr.Tests, steward.Test{
				Kind: steward.TestKindTCP,
				Host: p.HostAddr,
				Port: p.Host,
			})
		}
	}

	for _, tc := range cc.Tests {
		t, err := buildTest(tc)
		if err != nil {
			return nil, err
		}
		ctr.Tests = append(ctr.Tests, t)
	}

	return ctr, nil
}

func buildTest(tc testConfig) (steward.Test, error) {
	t := steward.Test{}
	if tc.Timeout != nil {
		t.Timeout = time.Duration(*tc.Timeout)
	}

	switch steward.TestKind(tc.Type) {
	case steward.TestKindTCP:
		if tc.Port == 0 {
			return t, fmt.Errorf("tcp test needs a port")
		}
		t.Kind = steward.TestKindTCP
		t.Host = tc.Host
		t.Port = tc.Port
		t.ExpectData = tc.ExpectData == nil || *tc.ExpectData
	case steward.TestKindHTTP:
		if tc.URL == "" {
			return t, fmt.Errorf("http test needs a url")
		}
		t.Kind = steward.TestKindHTTP
		t.URL = tc.URL
		t.VerifyTLS = tc.VerifyTLS == nil || *tc.VerifyTLS
	case steward.TestKindShell:
		if tc.Command == "" {
			return t, fmt.Errorf("shell test needs a command")
		}
		t.Kind = steward.TestKindShell
		t.Command = tc.Command
	default:
		return t, fmt.Errorf("unknown test type %q", tc.Type)
	}
	return t, nil
}

func parseVolume(s string) (steward.VolumeBinding, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		return steward.VolumeBinding{HostPath: parts[0], ContainerPath: parts[1]}, nil
	case 3:
		if parts[2] != "ro" {
			return steward.VolumeBinding{}, fmt.Errorf("invalid volume option %q in %q", parts[2], s)
		}
		return steward.VolumeBinding{HostPath: parts[0], ContainerPath: parts[1], ReadOnly: true}, nil
	default:
		return steward.VolumeBinding{}, fmt.Errorf("invalid volume %q, want host:container[:ro]", s)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
