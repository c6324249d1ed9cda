package resolve

// Dispatch is the invocation mechanism of a call site.
type Dispatch string

// Dispatch kinds, classified from the instruction-level invocation code.
const (
	DispatchStatic    Dispatch = "static"
	DispatchSpecial   Dispatch = "special" // constructor, private or super call
	DispatchVirtual   Dispatch = "virtual"
	DispatchInterface Dispatch = "interface"
	DispatchDynamic   Dispatch = "dynamic"
	DispatchUnknown   Dispatch = "unknown"
)

// dispatchByInstruction maps raw bytecode invocation names to dispatch kinds.
var dispatchByInstruction = map[string]Dispatch{
	"invokestatic":    DispatchStatic,
	"invokespecial":   DispatchSpecial,
	"invokevirtual":   DispatchVirtual,
	"invokeinterface": DispatchInterface,
	"invokedynamic":   DispatchDynamic,
}

// ClassifyDispatch maps a raw dispatch-instruction name to its kind. Already
// canonical kinds pass through unchanged, so documents may carry either form.
// Unrecognized instruction kinds degrade to DispatchUnknown rather than
// failing: a malformed instruction never aborts resolution.
func ClassifyDispatch(instruction string) Dispatch {
	if d, ok := dispatchByInstruction[instruction]; ok {
		return d
	}
	switch d := Dispatch(instruction); d {
	case DispatchStatic, DispatchSpecial, DispatchVirtual, DispatchInterface, DispatchDynamic:
		return d
	}
	return DispatchUnknown
}
