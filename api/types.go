// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Link-layer geometry of the emulated Ethernet-class interfaces.
const (
	HeaderLen   = 14   // Ethernet header
	MinFrameLen = 60   // frames are zero padded up to this size
	MinMTU      = 68   // smallest accepted MTU
	MaxMTU      = 1500 // largest accepted MTU
	MaxFrameLen = MaxMTU + HeaderLen
)

// EndpointID names one side of the pair.
type EndpointID int

const (
	Endpoint0 EndpointID = 0
	Endpoint1 EndpointID = 1
)

// Valid reports whether id addresses one of the two endpoints.
func (id EndpointID) Valid() bool {
	return id == Endpoint0 || id == Endpoint1
}

// Peer returns the id of the opposite endpoint.
func (id EndpointID) Peer() EndpointID {
	return 1 - id
}

func (id EndpointID) String() string {
	return fmt.Sprintf("sn%d", int(id))
}

// Mode selects the notification discipline of an endpoint.
type Mode int

const (
	// ModeSync delivers received frames inline with the notification.
	ModeSync Mode = iota
	// ModeBudgeted masks notifications and drains through budgeted polls.
	ModeBudgeted
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeBudgeted:
		return "budgeted"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sync", "":
		return ModeSync, nil
	case "budgeted", "napi":
		return ModeBudgeted, nil
	default:
		return ModeSync, errors.Wrapf(ErrInvalidArgument, "unknown mode %q", s)
	}
}

// NotifyKind enumerates the events a Dispatcher delivers to an endpoint.
type NotifyKind int

const (
	FrameReady NotifyKind = iota
	TransmitComplete
)

func (k NotifyKind) String() string {
	switch k {
	case FrameReady:
		return "frame-ready"
	case TransmitComplete:
		return "transmit-complete"
	default:
		return "unknown"
	}
}

// RxState is the receive notification state of an endpoint.
type RxState int

const (
	InterruptDriven RxState = iota
	Polling
)

func (s RxState) String() string {
	switch s {
	case InterruptDriven:
		return "interrupt-driven"
	case Polling:
		return "polling"
	default:
		return "unknown"
	}
}

// Stats mirrors the interface statistics kept by each endpoint.
type Stats struct {
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
	RxDropped uint64
	TxDropped uint64
	TxErrors  uint64
}

// PoolStats aggregates buffer pool occupancy and accounting.
type PoolStats struct {
	Capacity    int
	Free        int
	InFlight    int
	Queued      int
	Acquires    uint64
	Releases    uint64
	Exhaustions uint64
}
