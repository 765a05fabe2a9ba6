package httpapi

import (
	"jobagent-engine/internal/config"
	"jobagent-engine/internal/engine"
	"jobagent-engine/internal/tracker"
)

// Deps bundles the collaborators handlers need to construct responses.
// Built once in cmd/engine/main.go and passed to NewRouter.
type Deps struct {
	Engine  *engine.Engine
	Tracker *tracker.Tracker
	Config  config.Config
}
