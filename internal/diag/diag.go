// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package diag selects diagnostic transports and describes how to reach a
// target's diagnostic server over them.
//
// Protocol stacks are not part of this package. A Client is obtained by
// handing a Descriptor to the Opener registered for its transport.
package diag

import (
	"context"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// Transport is a diagnostic transport.
type Transport string

const (
	// CAN is diagnostics over ISO-TP on the target's CAN bus.
	CAN Transport = "can"
	// Eth is diagnostics over DoIP on the target's IP address.
	Eth Transport = "eth"
)

// Transports returns all transports in the order tests are expanded.
func Transports() []Transport {
	return []Transport{CAN, Eth}
}

// ParseTransport returns the transport named s.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(s); t {
	case CAN, Eth:
		return t, nil
	}
	return "", errors.Errorf("unknown diagnostic transport %q", s)
}

// Supported reports whether d declares the section needed by t.
func (t Transport) Supported(d *target.Descriptor) bool {
	switch t {
	case CAN:
		return d.SocketCAN != nil
	case Eth:
		return d.Eth != nil
	}
	return false
}

// ISO-TP settings used by the reference applications.
const (
	ISOTPTxID      = 0x002A
	ISOTPRxID      = 0x00F0
	ISOTPBlockSize = 8
	isotpTimeout   = time.Second
)

// ISOTPParams describes normal 11-bit ISO-TP addressing on a CAN bus.
type ISOTPParams struct {
	Channel string
	FD      bool
	TxID    uint32
	RxID    uint32

	// STMin is the minimum separation time between consecutive frames.
	STMin time.Duration

	BlockSize int

	// WFTMax is the number of wait frames accepted; 0 disables them.
	WFTMax int

	TxPadding byte
	TxDataMin int // 0 means no minimum

	RxFlowControlTimeout      time.Duration
	RxConsecutiveFrameTimeout time.Duration
}

// DoIPParams describes a DoIP connection to an ECU.
type DoIPParams struct {
	IPAddress            string
	Port                 int
	ECULogicalAddress    uint16
	ClientLogicalAddress uint16
	ProtocolVersion      int
}

// Descriptor tells an Opener how to reach the diagnostic server of a target.
// Exactly one of ISOTP and DoIP is set, matching Transport.
type Descriptor struct {
	Target    string
	Transport Transport
	ISOTP     *ISOTPParams
	DoIP      *DoIPParams
}

// NewDescriptor builds the descriptor for reaching d over t. It fails if d
// does not declare the section t needs.
func NewDescriptor(d *target.Descriptor, t Transport) (*Descriptor, error) {
	if !t.Supported(d) {
		return nil, errors.Errorf("target %s does not support diagnostics over %s", d.Name, t)
	}
	desc := &Descriptor{Target: d.Name, Transport: t}
	switch t {
	case CAN:
		desc.ISOTP = &ISOTPParams{
			Channel:                   d.SocketCAN.Channel,
			FD:                        d.SocketCAN.FD,
			TxID:                      ISOTPTxID,
			RxID:                      ISOTPRxID,
			BlockSize:                 ISOTPBlockSize,
			RxFlowControlTimeout:      isotpTimeout,
			RxConsecutiveFrameTimeout: isotpTimeout,
		}
	case Eth:
		desc.DoIP = &DoIPParams{
			IPAddress:            d.Eth.IPAddress,
			Port:                 d.Eth.Port,
			ECULogicalAddress:    d.Eth.LogicalAddress,
			ClientLogicalAddress: d.Eth.ClientLogicalAddress,
			ProtocolVersion:      d.Eth.ProtocolVersion,
		}
	}
	return desc, nil
}

// Client is an open connection to a diagnostic server.
type Client interface {
	// Request sends a diagnostic request and returns the positive or
	// negative response.
	Request(ctx context.Context, req []byte) ([]byte, error)
	Close() error
}

// Opener opens diagnostic clients for one transport.
type Opener interface {
	Open(ctx context.Context, d *Descriptor) (Client, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, d *Descriptor) (Client, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, d *Descriptor) (Client, error) {
	return f(ctx, d)
}

// Openers maps transports to the openers serving them.
type Openers map[Transport]Opener

// Open builds the descriptor of d for t and opens a client with the opener
// registered for t.
func (o Openers) Open(ctx context.Context, d *target.Descriptor, t Transport) (Client, error) {
	desc, err := NewDescriptor(d, t)
	if err != nil {
		return nil, err
	}
	op, ok := o[t]
	if !ok || op == nil {
		return nil, errors.Errorf("no diagnostic client available for transport %s", t)
	}
	cl, err := op.Open(ctx, desc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open diagnostic client for %s over %s", d.Name, t)
	}
	return cl, nil
}
