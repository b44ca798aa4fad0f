package eventadmin

import (
	"errors"
	"fmt"
)

// Error taxonomy (spec §7). Callers use errors.Is against these four; the narrower
// sentinels below wrap into one of them so both granularities are checkable.
var (
	ErrInvalidArgument   = errors.New("eventadmin: invalid argument")
	ErrOutOfMemory       = errors.New("eventadmin: out of memory")
	ErrIllegalState      = errors.New("eventadmin: illegal state")
	ErrThreadStartFailed = errors.New("eventadmin: worker thread failed to start")
)

// Narrower sentinels, each wrapping one of the taxonomy errors above.
var (
	ErrNilTopic          = fmt.Errorf("%w: topic is empty", ErrInvalidArgument)
	ErrNilHandler        = fmt.Errorf("%w: handler is nil", ErrInvalidArgument)
	ErrMissingServiceID  = fmt.Errorf("%w: service id is missing or negative", ErrInvalidArgument)
	ErrMissingTopics     = fmt.Errorf("%w: event.topics property is missing", ErrInvalidArgument)
	ErrPrefixTooLong     = fmt.Errorf("%w: subscription prefix exceeds %d bytes", ErrInvalidArgument, MaxPrefixLength)
	ErrInvalidFilter     = fmt.Errorf("%w: malformed filter string", ErrInvalidArgument)
	ErrQueueFull         = fmt.Errorf("%w: async event queue is full", ErrIllegalState)
	ErrNotStarted        = fmt.Errorf("%w: engine is not started", ErrIllegalState)
	ErrAlreadyStarted    = fmt.Errorf("%w: engine is already started", ErrIllegalState)
	ErrRegistryNotEmpty  = fmt.Errorf("%w: registry still has handlers on destroy", ErrIllegalState)
	ErrEngineDestroyed   = fmt.Errorf("%w: engine has been destroyed", ErrIllegalState)
)
