// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package target

import (
	"net"
	"regexp"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// Default values applied to descriptors on load.
const (
	DefaultStartMarker  = "INFO: Initialize level 1"
	DefaultBootedMarker = "DEBUG: Run level 8 done"
	DefaultBootTimeout  = 10 * time.Second
	DefaultStartTimeout = 30 * time.Second
	DefaultStopTimeout  = 10 * time.Second
	DefaultBaudrate     = 115200

	defaultCANInterface         = "socketcan"
	defaultLogicalAddress       = 0x002A
	defaultClientLogicalAddress = 0x0EF1
	defaultProtocolVersion      = 2
	defaultDoIPPort             = 13400
)

// ProcessOutput is the capture_serial port value meaning that the target
// console is the output of its hosting process rather than a serial device.
const ProcessOutput = "process"

// Launcher kinds accepted in the process section.
const (
	LauncherExec    = "exec"    // long-running local process
	LauncherCommand = "command" // one-shot start/stop commands, e.g. flash and reset a board
	LauncherDocker  = "docker"  // pre-created docker container
	LauncherSSH     = "ssh"     // process on a rig host reached over SSH
)

// Descriptor describes what a target exposes and how it is hosted.
// A Descriptor is immutable once loaded into a Registry.
type Descriptor struct {
	// Name is the unique target name, e.g. "posix" or "s32k148".
	Name string

	// SocketCAN holds CAN bus parameters. Nil if the target has no CAN bus.
	SocketCAN *CANParams
	// Eth holds network parameters. Nil if the target is not reachable over IP.
	Eth *EthParams
	// HWTesterSerial holds the serial port of a hardware tester board wired
	// to the target. Nil if there is none.
	HWTesterSerial *SerialParams

	// Process describes how the target is started and stopped.
	Process ProcessParams
	// CaptureSerial describes where the target console is read from. Nil if
	// the console is not captured.
	CaptureSerial *SerialParams
	// Boot describes boot markers on the console.
	Boot BootParams
	// PerRun lists processes started once for the whole run, e.g. bus
	// simulators. Processes with the same name across targets are started once.
	PerRun []PerRunProcess
}

// CANParams describes a SocketCAN bus.
type CANParams struct {
	Interface string
	Channel   string
	Bitrate   int
	FD        bool
}

// EthParams describes how to reach the target's diagnostic server over IP.
type EthParams struct {
	IPAddress            string
	Port                 int
	LogicalAddress       uint16
	ClientLogicalAddress uint16
	ProtocolVersion      int
}

// SerialParams describes a serial device.
type SerialParams struct {
	Port     string
	Baudrate int
}

// FromProcess reports whether the serial stream is the hosting process output.
func (p *SerialParams) FromProcess() bool {
	return p != nil && p.Port == ProcessOutput
}

// ProcessParams describes how a target is hosted.
type ProcessParams struct {
	Launcher     string
	Command      []string
	StopCommand  []string
	Dir          string
	Env          map[string]string
	Container    string
	Host         string
	User         string
	KeyFile      string
	KnownHosts   string
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// BootParams describes the console markers of a boot cycle.
type BootParams struct {
	StartMarker  string
	BootedMarker string
	Timeout      time.Duration
}

// PerRunProcess is a companion process needed once for the whole run.
type PerRunProcess struct {
	Name         string
	Command      []string
	Dir          string
	Env          map[string]string
	StartTimeout time.Duration
}

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidName reports whether name can be used as a target name.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}

// validate checks d for errors that would only surface later in the run.
func (d *Descriptor) validate() error {
	if !ValidName(d.Name) {
		return errors.Errorf("invalid target name %q", d.Name)
	}
	if c := d.SocketCAN; c != nil && c.Channel == "" {
		return errors.New("socketcan: channel is empty")
	}
	if e := d.Eth; e != nil {
		if net.ParseIP(e.IPAddress) == nil {
			return errors.Errorf("eth: invalid ip_address %q", e.IPAddress)
		}
		if e.Port <= 0 || e.Port > 65535 {
			return errors.Errorf("eth: invalid port %d", e.Port)
		}
	}
	if s := d.HWTesterSerial; s != nil {
		if s.Port == "" || s.FromProcess() {
			return errors.Errorf("hw_tester_serial: invalid port %q", s.Port)
		}
		if s.Baudrate <= 0 {
			return errors.Errorf("hw_tester_serial: invalid baudrate %d", s.Baudrate)
		}
	}
	if s := d.CaptureSerial; s != nil {
		if s.Port == "" {
			return errors.New("capture_serial: port is empty")
		}
		if s.Baudrate <= 0 {
			return errors.Errorf("capture_serial: invalid baudrate %d", s.Baudrate)
		}
	}
	if d.Boot.BootedMarker == "" {
		return errors.New("boot: booted_marker is empty")
	}
	if d.Boot.Timeout <= 0 {
		return errors.Errorf("boot: invalid timeout %v", d.Boot.Timeout)
	}
	if err := d.Process.validate(); err != nil {
		return errors.Wrap(err, "process")
	}
	if d.CaptureSerial.FromProcess() {
		switch d.Process.Launcher {
		case LauncherExec, LauncherDocker, LauncherSSH:
		default:
			return errors.Errorf("capture_serial: port %q requires a long-running launcher, got %q", ProcessOutput, d.Process.Launcher)
		}
	}
	seen := make(map[string]struct{})
	for _, p := range d.PerRun {
		if p.Name == "" || len(p.Command) == 0 {
			return errors.Errorf("per_run: process %q needs a name and a command", p.Name)
		}
		if _, ok := seen[p.Name]; ok {
			return errors.Errorf("per_run: duplicate process %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.StartTimeout < 0 {
			return errors.Errorf("per_run: process %q has negative start_timeout", p.Name)
		}
	}
	return nil
}

func (p *ProcessParams) validate() error {
	if p.StartTimeout <= 0 || p.StopTimeout <= 0 {
		return errors.Errorf("invalid timeouts start=%v stop=%v", p.StartTimeout, p.StopTimeout)
	}
	switch p.Launcher {
	case LauncherExec, LauncherCommand:
		if len(p.Command) == 0 {
			return errors.Errorf("launcher %q requires command", p.Launcher)
		}
	case LauncherDocker:
		if p.Container == "" {
			return errors.New("launcher docker requires container")
		}
	case LauncherSSH:
		if p.Host == "" || len(p.Command) == 0 {
			return errors.New("launcher ssh requires host and command")
		}
	default:
		return errors.Errorf("unknown launcher %q", p.Launcher)
	}
	return nil
}
