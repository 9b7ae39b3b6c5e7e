// Package machine holds the session sub-machines. Every method must run on
// the session loop; collaborator completions are posted back onto it.
package machine

import (
	"github.com/rs/zerolog/log"
)

// Deps are shared by every machine.
type Deps struct {
	// Post schedules fn on the session loop.
	Post func(fn func())
	// Notify is called after every state change.
	Notify func()
}

type base[S ~string] struct {
	name  string
	state S
	deps  Deps
}

func (b *base[S]) State() S { return b.state }

func (b *base[S]) set(to S) {
	if b.state == to {
		return
	}
	log.Debug().Str("module", "app.machine").Str("machine", b.name).Str("from", string(b.state)).Str("to", string(to)).Msg("transition")
	b.state = to
	b.changed()
}

func (b *base[S]) changed() {
	if b.deps.Notify != nil {
		b.deps.Notify()
	}
}

// onLoop wraps fn so it runs on the session loop.
func (b *base[S]) onLoop(fn func(bool)) func(bool) {
	return func(v bool) { b.deps.Post(func() { fn(v) }) }
}
