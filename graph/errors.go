package graph

// Error codes carried by EngineError.Code for programmatic handling.
//
// Construction-time codes are returned from StateGraph methods and Compile;
// runtime codes are returned from CompiledGraph operations.
const (
	// Construction and compile validation.
	CodeDuplicateNode     = "DUPLICATE_NODE"
	CodeReservedNode      = "RESERVED_NODE"
	CodeUnknownNode       = "UNKNOWN_NODE"
	CodeNoEntry           = "NO_ENTRY"
	CodeEmptyDestinations = "EMPTY_DESTINATIONS"
	CodeDuplicateRouter   = "DUPLICATE_ROUTER"
	CodeMissingRoute      = "MISSING_ROUTE"
	CodeUnreachableNode   = "UNREACHABLE_NODE"
	CodeMissingReducer    = "MISSING_REDUCER"
	CodeInvalidOption     = "INVALID_OPTION"

	// Runtime.
	CodeUndeclaredDestination = "UNDECLARED_DESTINATION"
	CodeNodeFailed            = "NODE_FAILED"
	CodeStoreLoad             = "STORE_LOAD"
	CodeStoreSave             = "STORE_SAVE"
	CodeMaxSteps              = "MAX_STEPS"
)

// EngineError represents an error from the engine with structured information.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
