package clock

import "go.uber.org/fx"

// NewSystem is the production clock; tests swap in Fixed directly.
func NewSystem() Clock { return SystemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
