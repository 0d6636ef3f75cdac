package error

import "errors"

var (
	ErrControllerBusy         = errors.New("Controller is busy with operation")
	ErrControllerNotIdle      = errors.New("Failed to start operation - controller not idle")
	ErrOperationNotFound      = errors.New("Operation not found")
	ErrMissingParameter       = errors.New("Missing required parameter")
	ErrInvalidParameter       = errors.New("Invalid parameter")
	ErrUnknownCommand         = errors.New("Unknown command")
	ErrEvaluatorNotAvailable  = errors.New("Evaluator not available")
	ErrNoFunctionBreakpoints  = errors.New("No breakpoints could be set for function")
	ErrEngineTimeout          = errors.New("debugger engine time out")
	ErrSessionNotActive       = errors.New("debug session is not active")
	ErrDebuggerIsClosed       = errors.New("debug is closed")
	ErrProgramIsRunning       = errors.New("The program is running")
	ErrBreakpointNotFound     = errors.New("breakpoint not found")
	ErrBreakpointTypeNotValid = errors.New("breakpoint type is not valid at this location")
	ErrFrameNotFound          = errors.New("Frame not found")
	ErrLanguageNotSupported   = errors.New("This language is not supported")
	ErrEngineTypeNotSupported = errors.New("This engine type is not supported")
	ErrAdapterAddressNotFound = errors.New("debug adapter did not report a listening address")
	ErrReplayScriptInvalid    = errors.New("replay script is invalid")
	ErrEvaluateNotSupported   = errors.New("expression evaluation is not supported")
	ErrRequestFailed          = errors.New("debug adapter request failed")
	ErrUnexpectedResponseType = errors.New("unexpected debug adapter response")
	ErrEventQueueClosed       = errors.New("event queue is closed")
)
