package handle

import (
	"context"

	"github.com/flux-framework/flux-go/internal/ferrors"
)

// Yield parks the calling handler task and re-queues its continuation on
// the handle's reactor, implementing the COPROC flag's "handlers may
// suspend with an implicit yield" contract (SPEC_FULL.md §6 / spec.md
// §9's redesign note) as tasks cooperating through the reactor's event
// queue rather than true stackful coroutines — the teacher's pack shows
// this goroutine-per-task style throughout (e.g. ext/etl's communicator
// goroutines).
//
// Yield must only be called from within a HandlerFunc dispatched while
// FlagCoproc is set (see onMessage, which runs such handlers on their
// own goroutine rather than the reactor's, specifically so Yield can
// block here without stalling dispatch of other messages). Absent the
// flag, handlers must be non-blocking and Yield returns an error
// immediately instead of silently blocking the single-threaded loop.
func (h *Handle) Yield(ctx context.Context) error {
	if h.Flags()&FlagCoproc == 0 {
		return ferrors.New(ferrors.Application, 0, "EPERM: Yield requires FlagCoproc")
	}
	resume := make(chan struct{})
	h.r.Ref("yield")
	defer h.r.Unref("yield")

	// Re-arming through the reactor's own timer queue (rather than a
	// bare goroutine sleep) gives the resume event the same ordering
	// relative to other reactor-driven work as any other callback.
	h.r.After(0, func() { close(resume) })

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ferrors.Wrap(ferrors.Timeout, 0, ctx.Err(), "yield canceled")
	}
}
