package delivery

import (
	"time"

	"go.uber.org/zap"

	"login-handshake/login"
)

// AppDependencies defines the contract that the delivery layer (HTTP handlers)
// expects from the core application layer.
type AppDependencies interface {
	// Gateway performs the credential exchanges of every login flow.
	Gateway() login.Gateway

	Logger() *zap.Logger

	// FlowTTL is how long an untouched login flow is kept.
	FlowTTL() time.Duration
}
