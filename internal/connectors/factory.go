package connectors

import (
	"fmt"
	"sync"

	"github.com/quillindex/quill/internal/errors"
)

// Builder constructs a connector from its source-specific configuration.
// The returned connector must satisfy the interface matching at least one
// InputType; Instantiate verifies the requested one.
type Builder func(config map[string]any) (BaseConnector, error)

var (
	registryMu sync.RWMutex
	registry   = map[Source]Builder{}
)

// Register makes a connector source available to Instantiate. Connectors
// register themselves from their package's init; registering the same
// source twice panics, which surfaces wiring mistakes at startup.
func Register(source Source, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[source]; dup {
		panic(fmt.Sprintf("connectors: duplicate registration for source %q", source))
	}
	registry[source] = builder
}

// Instantiate builds a connector for the given source, verifies it supports
// the requested input type, and applies credentials. It returns the
// connector together with any rotated credentials the source handed back.
func Instantiate(source Source, inputType InputType, config map[string]any, credentials map[string]any) (BaseConnector, map[string]any, error) {
	registryMu.RLock()
	builder, ok := registry[source]
	registryMu.RUnlock()
	if !ok {
		return nil, nil, errors.New(errors.ErrCodeConnectorMissing,
			fmt.Sprintf("no connector registered for source %q", source), nil).
			WithDetail("source", string(source))
	}

	conn, err := builder(config)
	if err != nil {
		return nil, nil, fmt.Errorf("building %s connector: %w", source, err)
	}

	if !supportsInputType(conn, inputType) {
		return nil, nil, errors.New(errors.ErrCodeInputTypeMismatch,
			fmt.Sprintf("connector %q does not support input type %q", source, inputType), nil).
			WithDetail("source", string(source)).
			WithDetail("input_type", string(inputType))
	}

	updated, err := conn.LoadCredentials(credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("loading credentials for %s connector: %w", source, err)
	}
	return conn, updated, nil
}

func supportsInputType(conn BaseConnector, inputType InputType) bool {
	switch inputType {
	case InputTypeLoadState:
		_, ok := conn.(LoadConnector)
		return ok
	case InputTypePoll:
		_, ok := conn.(PollConnector)
		return ok
	case InputTypeEvent:
		_, ok := conn.(EventConnector)
		return ok
	default:
		return false
	}
}
