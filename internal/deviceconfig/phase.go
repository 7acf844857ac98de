package deviceconfig

import "fmt"

// Phase is a step of the section read or write pipeline.
//
// Read:  Idle -> Discovering -> Fetching -> Decoding -> Ready
// Write: Idle -> Canonicalizing -> Validating -> Encoding -> Sending -> Sent
//
// Any phase may end in Failed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDiscovering
	PhaseFetching
	PhaseDecoding
	PhaseReady
	PhaseCanonicalizing
	PhaseValidating
	PhaseEncoding
	PhaseSending
	PhaseSent
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDiscovering:
		return "discovering"
	case PhaseFetching:
		return "fetching"
	case PhaseDecoding:
		return "decoding"
	case PhaseReady:
		return "ready"
	case PhaseCanonicalizing:
		return "canonicalizing"
	case PhaseValidating:
		return "validating"
	case PhaseEncoding:
		return "encoding"
	case PhaseSending:
		return "sending"
	case PhaseSent:
		return "sent"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Terminal reports whether the phase ends a pipeline run.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseSent || p == PhaseFailed
}
