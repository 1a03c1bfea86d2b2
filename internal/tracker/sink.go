package tracker

import (
	"context"

	"nighthub/internal/tracking"
)

// Sink receives tracker writes. *tracking.Repository writes them straight to
// the database, RemoteSink posts them to a nighthub server, and Dispatcher
// queues them in front of either.
type Sink interface {
	UpsertDevice(ctx context.Context, in tracking.DeviceUpsert) error
	StartSession(ctx context.Context, in tracking.SessionStart) error
	TouchSession(ctx context.Context, in tracking.SessionTouch) error
	StartView(ctx context.Context, in tracking.ViewStart) error
	EndView(ctx context.Context, in tracking.ViewEnd) error
}

var _ Sink = (*tracking.Repository)(nil)

// Beacon operation types, shared with the server's beacon endpoint.
const (
	OpDevice       = "device"
	OpSessionStart = "session_start"
	OpSessionTouch = "session_touch"
	OpViewStart    = "view_start"
	OpViewEnd      = "view_end"
)

// BeaconOp is one write inside a beacon batch.
type BeaconOp struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Batch collects writes in memory so they can be flushed as one beacon.
type Batch struct {
	Ops []BeaconOp
}

func (b *Batch) add(kind string, payload any) error {
	b.Ops = append(b.Ops, BeaconOp{Type: kind, Payload: payload})
	return nil
}

func (b *Batch) UpsertDevice(_ context.Context, in tracking.DeviceUpsert) error {
	return b.add(OpDevice, in)
}

func (b *Batch) StartSession(_ context.Context, in tracking.SessionStart) error {
	return b.add(OpSessionStart, in)
}

func (b *Batch) TouchSession(_ context.Context, in tracking.SessionTouch) error {
	return b.add(OpSessionTouch, in)
}

func (b *Batch) StartView(_ context.Context, in tracking.ViewStart) error {
	return b.add(OpViewStart, in)
}

func (b *Batch) EndView(_ context.Context, in tracking.ViewEnd) error {
	return b.add(OpViewEnd, in)
}

// Len returns the number of buffered writes.
func (b *Batch) Len() int { return len(b.Ops) }
