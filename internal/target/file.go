// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package target

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// descriptorExts lists accepted descriptor file extensions in lookup order.
var descriptorExts = []string{".yaml", ".yml", ".toml"}

// duration is a time.Duration written as a Go duration string ("10s").
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d *duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

type rawCAN struct {
	Interface string `yaml:"interface" toml:"interface"`
	Channel   string `yaml:"channel" toml:"channel"`
	Bitrate   int    `yaml:"bitrate" toml:"bitrate"`
	FD        bool   `yaml:"fd" toml:"fd"`
}

type rawEth struct {
	IPAddress            string `yaml:"ip_address" toml:"ip_address"`
	Port                 int    `yaml:"port" toml:"port"`
	LogicalAddress       uint16 `yaml:"logical_address" toml:"logical_address"`
	ClientLogicalAddress uint16 `yaml:"client_logical_address" toml:"client_logical_address"`
	ProtocolVersion      int    `yaml:"protocol_version" toml:"protocol_version"`
}

type rawSerial struct {
	Port     string `yaml:"port" toml:"port"`
	Baudrate int    `yaml:"baudrate" toml:"baudrate"`
}

type rawProcess struct {
	Launcher     string            `yaml:"launcher" toml:"launcher"`
	Command      []string          `yaml:"command" toml:"command"`
	StopCommand  []string          `yaml:"stop_command" toml:"stop_command"`
	Dir          string            `yaml:"dir" toml:"dir"`
	Env          map[string]string `yaml:"env" toml:"env"`
	Container    string            `yaml:"container" toml:"container"`
	Host         string            `yaml:"host" toml:"host"`
	User         string            `yaml:"user" toml:"user"`
	KeyFile      string            `yaml:"key_file" toml:"key_file"`
	KnownHosts   string            `yaml:"known_hosts" toml:"known_hosts"`
	StartTimeout duration          `yaml:"start_timeout" toml:"start_timeout"`
	StopTimeout  duration          `yaml:"stop_timeout" toml:"stop_timeout"`
}

type rawBoot struct {
	StartMarker  *string  `yaml:"start_marker" toml:"start_marker"`
	BootedMarker string   `yaml:"booted_marker" toml:"booted_marker"`
	Timeout      duration `yaml:"timeout" toml:"timeout"`
}

type rawPerRun struct {
	Name         string            `yaml:"name" toml:"name"`
	Command      []string          `yaml:"command" toml:"command"`
	Dir          string            `yaml:"dir" toml:"dir"`
	Env          map[string]string `yaml:"env" toml:"env"`
	StartTimeout duration          `yaml:"start_timeout" toml:"start_timeout"`
}

type rawDescriptor struct {
	SocketCAN      *rawCAN     `yaml:"socketcan" toml:"socketcan"`
	Eth            *rawEth     `yaml:"eth" toml:"eth"`
	HWTesterSerial *rawSerial  `yaml:"hw_tester_serial" toml:"hw_tester_serial"`
	Process        *rawProcess `yaml:"process" toml:"process"`
	CaptureSerial  *rawSerial  `yaml:"capture_serial" toml:"capture_serial"`
	Boot           *rawBoot    `yaml:"boot" toml:"boot"`
	PerRun         []rawPerRun `yaml:"per_run" toml:"per_run"`
}

// ParseDescriptor parses descriptor data of the given format (a file
// extension from descriptorExts) for target name. Unknown keys are errors.
func ParseDescriptor(name, ext string, data []byte) (*Descriptor, error) {
	var raw rawDescriptor
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &raw); err != nil {
			return nil, errors.Wrap(err, "failed to parse YAML")
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, "failed to parse TOML")
		}
	default:
		return nil, errors.Errorf("unsupported descriptor format %q", ext)
	}
	d := raw.resolve(name)
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// resolve converts raw into a Descriptor with defaults applied.
func (raw *rawDescriptor) resolve(name string) *Descriptor {
	d := &Descriptor{Name: name}
	if c := raw.SocketCAN; c != nil {
		d.SocketCAN = &CANParams{Interface: c.Interface, Channel: c.Channel, Bitrate: c.Bitrate, FD: c.FD}
		if d.SocketCAN.Interface == "" {
			d.SocketCAN.Interface = defaultCANInterface
		}
	}
	if e := raw.Eth; e != nil {
		d.Eth = &EthParams{
			IPAddress:            e.IPAddress,
			Port:                 orInt(e.Port, defaultDoIPPort),
			LogicalAddress:       e.LogicalAddress,
			ClientLogicalAddress: e.ClientLogicalAddress,
			ProtocolVersion:      orInt(e.ProtocolVersion, defaultProtocolVersion),
		}
		if d.Eth.LogicalAddress == 0 {
			d.Eth.LogicalAddress = defaultLogicalAddress
		}
		if d.Eth.ClientLogicalAddress == 0 {
			d.Eth.ClientLogicalAddress = defaultClientLogicalAddress
		}
	}
	d.HWTesterSerial = raw.HWTesterSerial.resolve()
	d.CaptureSerial = raw.CaptureSerial.resolve()

	d.Boot = BootParams{StartMarker: DefaultStartMarker, BootedMarker: DefaultBootedMarker, Timeout: DefaultBootTimeout}
	if b := raw.Boot; b != nil {
		if b.StartMarker != nil {
			d.Boot.StartMarker = *b.StartMarker // an explicit "" disables ordered pairing
		}
		if b.BootedMarker != "" {
			d.Boot.BootedMarker = b.BootedMarker
		}
		if b.Timeout != 0 {
			d.Boot.Timeout = time.Duration(b.Timeout)
		}
	}

	p := raw.Process
	if p == nil {
		p = &rawProcess{}
	}
	d.Process = ProcessParams{
		Launcher:     p.Launcher,
		Command:      p.Command,
		StopCommand:  p.StopCommand,
		Dir:          p.Dir,
		Env:          p.Env,
		Container:    p.Container,
		Host:         p.Host,
		User:         p.User,
		KeyFile:      p.KeyFile,
		KnownHosts:   p.KnownHosts,
		StartTimeout: orDuration(time.Duration(p.StartTimeout), DefaultStartTimeout),
		StopTimeout:  orDuration(time.Duration(p.StopTimeout), DefaultStopTimeout),
	}
	if d.Process.Launcher == "" {
		switch {
		case p.Container != "":
			d.Process.Launcher = LauncherDocker
		case p.Host != "":
			d.Process.Launcher = LauncherSSH
		default:
			d.Process.Launcher = LauncherExec
		}
	}

	for _, r := range raw.PerRun {
		d.PerRun = append(d.PerRun, PerRunProcess{
			Name:         r.Name,
			Command:      r.Command,
			Dir:          r.Dir,
			Env:          r.Env,
			StartTimeout: orDuration(time.Duration(r.StartTimeout), DefaultStartTimeout),
		})
	}
	return d
}

func (s *rawSerial) resolve() *SerialParams {
	if s == nil {
		return nil
	}
	return &SerialParams{Port: s.Port, Baudrate: orInt(s.Baudrate, DefaultBaudrate)}
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return def
}

// ReadDescriptor reads the descriptor of target name from dir.
func ReadDescriptor(dir, name string) (*Descriptor, error) {
	if !ValidName(name) {
		return nil, errors.Errorf("invalid target name %q", name)
	}
	for _, ext := range descriptorExts {
		p := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		d, err := ParseDescriptor(name, ext, data)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", p)
		}
		return d, nil
	}
	avail, _ := Available(dir)
	return nil, errors.Errorf("unknown target %q (available in %s: %s)", name, dir, strings.Join(avail, ", "))
}

// Available returns the sorted names of targets that have a descriptor in dir.
func Available(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		ext := filepath.Ext(ent.Name())
		name := strings.TrimSuffix(ent.Name(), ext)
		for _, e := range descriptorExts {
			if e != ext || !ValidName(name) {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
