package authorization

import "go.uber.org/fx"

// Module wires the casbin enforcer and the authorization service. The
// enforcer seeds billing role policies on startup.
var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
