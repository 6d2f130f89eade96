package vm

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the VM intermediate language.
//
// We declare a shared 'Operation' interface for every macro operation available for the
// language and we define some other useful top-level struct such as Program and Module.
// Is important to note that a VM program can be composed of multiple translation units
// that can be also referenced as file or modules or also classes.

// A VM Program is just a set of multiple modules/files, in the VM spec each Jack class is
// translated to its own .vm file (just like Java .class file) that can be handled as its
// own translation unit during the compilation or lowering phases. Keyed by the file's base
// name (e.g. "Main.vm") since the VM Translator needs that name to scope 'static' variables.
type Program map[string]Module

// A VM Module is just a linear list of VM operations/instructions
type Module []Operation

// Used to put together all operation in the VM language (Memory, Arithmetic, ... ops).
type Operation interface{}

// ----------------------------------------------------------------------------
// Memory Op

// In memory representation of a Memory operation for the VM language.
//
// In the VM intermediate language there are only two possible memory operation on the stack.
// We could either push a new value taken from the specified segment location on the stack's
// top or take the stack's top and saves its value at the specified segment location.
type MemoryOp struct {
	Operation OperationType // The type of operation, either 'push' or 'pop'
	Segment   SegmentType   // The named memory segment to use (this, that, temp, ...)
	Offset    uint16        // The specific location/offset inside of the memory segment
}

type OperationType string // Enum to manage the operation allowed for a MemoryOp

const (
	Push OperationType = "push"
	Pop  OperationType = "pop"
)

type SegmentType string // Enum to manage the segment accessible for a MemoryOp

const (
	Temp     SegmentType = "temp"     // Real segment used to store intermediate computations
	Constant SegmentType = "constant" // Virtual segment used to access numeric constant

	Local    SegmentType = "local"    // Real segment used to store local function variables
	Static   SegmentType = "static"   // Real segment used to store shared/static variables
	Argument SegmentType = "argument" // Real segment used to store function's argument

	This    SegmentType = "this"    // Virtual segment used to point to a specific memory location
	That    SegmentType = "that"    // Virtual segment used to point to a specific memory location
	Pointer SegmentType = "pointer" // Real segment w/ 2 location used to set the 'this' and 'that' pointers
)

// ----------------------------------------------------------------------------
// Arithmetic Op

// In memory representation of a Arithmetic operation for the VM language.
//
// In the VM intermediate language there are just a handful of operation available.
// In particular each operation acts directly on the top of the stack, of course we have both unary
// and binary operation, the specific management of each op will be handled in the codegen phase.
type ArithmeticOp struct{ Operation ArithOpType }

type ArithOpType string // Enum to manage the operation allowed for an ArithmeticOp

const (
	Eq ArithOpType = "eq" // Comparison operations
	Gt ArithOpType = "gt"
	Lt ArithOpType = "lt"

	Add ArithOpType = "add" // Arithmetic operations
	Sub ArithOpType = "sub"
	Neg ArithOpType = "neg"

	Not ArithOpType = "not" // Bitwise operations
	And ArithOpType = "and"
	Or  ArithOpType = "or"
)

// ----------------------------------------------------------------------------
// Label Declaration / Program flow

// In memory representation of a 'label' pseudo-op in the VM language.
//
// Labels are function-scoped: the same 'Name' declared inside two different functions
// refers to two distinct locations once lowered, the Lowerer is responsible for adding
// the enclosing function's name as a prefix (see the 'currentFunction$label' scheme).
type LabelDecl struct {
	Name string // The symbol as written in the source, unqualified by its enclosing function
}

// In memory representation of a 'goto'/'if-goto' operation in the VM language.
//
// 'if-goto' pops the stack's top and only jumps when the popped value is non-zero (it
// is the one and only conditional jump available at the VM level), 'goto' is unconditional.
type GotoOp struct {
	Jump  JumpType // Either and unconditional 'goto' or a conditional 'if-goto'
	Label string   // The (function-unqualified) label targeted by this jump
}

type JumpType string // Enum to distinguish conditional from unconditional jumps

const (
	Unconditional JumpType = "goto"
	Conditional   JumpType = "if-goto"
)

// ----------------------------------------------------------------------------
// Function / Call / Return

// In memory representation of a 'function' declaration in the VM language.
//
// Declares the entry point of a callable unit together with the number of local
// variables it needs, the Lowerer materializes these locals by pushing 'NLocal' zeroes.
type FuncDecl struct {
	Name   string // Fully qualified name (e.g. 'Main.main')
	NLocal uint8  // Number of local variables to zero-initialize on entry
}

// In memory representation of a 'call' operation in the VM language.
//
// Invoking a function requires saving the caller's frame (LCL, ARG, THIS, THAT) and a
// return address on the stack before jumping, see the Lowerer for the full protocol.
type FuncCallOp struct {
	Name  string // Fully qualified name of the callee
	NArgs uint8  // Number of arguments already pushed onto the stack by the caller
}

// In memory representation of a 'return' operation in the VM language.
//
// Tears down the current function's frame, restores the caller's segment pointers and
// transfers control back to the caller, leaving exactly one value at the top of the stack.
type ReturnOp struct{}
