package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hmny-labs/n2t-toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one or more parsed translation units) and produces
// its 'asm.Program' counterpart, a single assembly stream equivalent to the concatenation
// of every unit's semantics.
//
// Two pieces of state purposefully outlive a single module: 'returnCounter' (used to mint
// a fresh 'currentFunction$ret.k' label on every 'call') and 'currentFunction' (used to scope
// 'label'/'goto'/'if-goto' targets) persist across files, exactly as the VM call/return
// convention requires call-site labels to stay unique across the whole program, not just
// within one file.
type Lowerer struct {
	program Program

	currentFunction string // Name of the function currently being lowered, updates on 'function'
	returnCounter   int    // Monotonic counter, used to mint 'currentFunction$ret.k' labels
	compareCounter  int    // Monotonic counter, used to mint unique labels for eq/lt/gt

	bootstrap bool // Forces bootstrap emission even when no 'Sys.vm' unit is present
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program 'p' to be non-nil.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// EnableBootstrap forces the bootstrap sequence (SP=256; call Sys.init 0) to be emitted
// even when the program doesn't contain a 'Sys.vm' unit. Used by callers (e.g. a CLI flag)
// that want to opt in regardless of auto-detection.
func (l *Lowerer) EnableBootstrap() { l.bootstrap = true }

// Lower walks every module of the Program, in a deterministic (alphabetical) file order,
// and produces the equivalent 'asm.Program'. When the program contains a unit named
// 'Sys.vm' (or the caller called EnableBootstrap), a bootstrap sequence is prepended
// before any per-file code, regardless of where 'Sys.vm' falls in that file order.
func (l *Lowerer) Lower() (asm.Program, error) {
	names := make([]string, 0, len(l.program))
	for name := range l.program {
		names = append(names, name)
	}
	sort.Strings(names)

	program := asm.Program{}

	if _, hasSysInit := l.program["Sys.vm"]; hasSysInit || l.bootstrap {
		l.currentFunction = "Bootstrap"
		program = append(program, asm.AInstruction{Location: "256"})
		program = append(program, asm.CInstruction{Dest: "D", Comp: "A"})
		program = append(program, asm.AInstruction{Location: "SP"})
		program = append(program, asm.CInstruction{Dest: "M", Comp: "D"})
		program = append(program, l.emitCall(FuncCallOp{Name: "Sys.init", NArgs: 0})...)
	}

	for _, name := range names {
		filebase := strings.TrimSuffix(name, ".vm")

		for _, operation := range l.program[name] {
			instructions, err := l.lowerOperation(operation, filebase)
			if err != nil {
				return nil, err
			}
			program = append(program, instructions...)
		}
	}

	return program, nil
}

// Dispatches a single 'vm.Operation' to its specialized lowering helper based on its
// concrete type, much like a switch-driven recursive descent but acting on an already
// typed IR rather than a raw parser AST.
func (l *Lowerer) lowerOperation(operation Operation, filebase string) ([]asm.Instruction, error) {
	switch op := operation.(type) {
	case MemoryOp:
		return l.emitMemoryOp(op, filebase)
	case ArithmeticOp:
		return l.emitArithmeticOp(op), nil
	case LabelDecl:
		return l.emitLabelDecl(op), nil
	case GotoOp:
		return l.emitGotoOp(op), nil
	case FuncDecl:
		return l.emitFuncDecl(op), nil
	case FuncCallOp:
		return l.emitCall(op), nil
	case ReturnOp:
		return l.emitReturn(), nil
	default:
		return nil, fmt.Errorf("unrecognized vm.Operation %T", operation)
	}
}

// ----------------------------------------------------------------------------
// Shared snippets

// pushD emits the tail common to every 'push' translation: store D at *SP, then SP++.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// popD emits the head common to every 'pop' translation: SP--, then load *SP into D.
func popD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

// segmentPointer maps the four indirect segments to the Hack symbol holding their base.
var segmentPointer = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// ----------------------------------------------------------------------------
// Memory Op

func (l *Lowerer) emitMemoryOp(op MemoryOp, filebase string) ([]asm.Instruction, error) {
	switch op.Segment {
	case Constant:
		if op.Operation == Pop {
			return nil, fmt.Errorf("segment 'constant' does not support 'pop'")
		}
		return append([]asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, pushD()...), nil

	case Local, Argument, This, That:
		base := segmentPointer[op.Segment]
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: base},
				asm.CInstruction{Dest: "D", Comp: "M"},
				asm.AInstruction{Location: fmt.Sprint(op.Offset)},
				asm.CInstruction{Dest: "A", Comp: "D+A"},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instructions := append([]asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "D+A"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, popD()...)
		return append(instructions,
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Static:
		symbol := fmt.Sprintf("%s.%d", filebase, op.Offset)
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: symbol},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		return append(popD(),
			asm.AInstruction{Location: symbol},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Temp:
		if op.Offset > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", op.Offset)
		}
		address := fmt.Sprint(5 + op.Offset)
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: address},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		return append(popD(),
			asm.AInstruction{Location: address},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Pointer:
		if op.Offset > 1 {
			return nil, fmt.Errorf("invalid 'pointer' offset, got %d", op.Offset)
		}
		symbol := "THIS"
		if op.Offset == 1 {
			symbol = "THAT"
		}
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: symbol},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		return append(popD(),
			asm.AInstruction{Location: symbol},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	default:
		return nil, fmt.Errorf("unrecognized segment '%s'", op.Segment)
	}
}

// ----------------------------------------------------------------------------
// Arithmetic Op

// binaryOp maps a binary arithmetic/logical operation to the Comp bit-code applied once
// the right operand (popped first, per spec "top is right operand") sits in D and the
// left operand sits at the stack slot directly below it.
var binaryOp = map[ArithOpType]string{
	Add: "M+D",
	Sub: "M-D",
	And: "M&D",
	Or:  "M|D",
}

// unaryOp maps a unary arithmetic/logical operation to the Comp bit-code applied in place
// on the current top of the stack.
var unaryOp = map[ArithOpType]string{
	Neg: "-M",
	Not: "!M",
}

// jumpFor maps a comparison operation to the Hack jump bit-code used to test (x - y).
var jumpFor = map[ArithOpType]string{
	Eq: "JEQ",
	Lt: "JLT",
	Gt: "JGT",
}

func (l *Lowerer) emitArithmeticOp(op ArithmeticOp) []asm.Instruction {
	if comp, ok := unaryOp[op.Operation]; ok {
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}
	}

	if comp, ok := binaryOp[op.Operation]; ok {
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.CInstruction{Dest: "A", Comp: "A-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}
	}

	jump := jumpFor[op.Operation]
	trueLabel := fmt.Sprintf("VM.COMPARE.TRUE.%d", l.compareCounter)
	l.compareCounter++

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.AInstruction{Location: trueLabel},
		asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"},
		asm.LabelDecl{Name: trueLabel},
	}
}

// ----------------------------------------------------------------------------
// Label / Goto

// scopedLabel prefixes a user label with the enclosing function's name, per the
// function-scoping rule: 'label L' within function 'f' is addressed as 'f$L'.
func (l *Lowerer) scopedLabel(name string) string {
	return fmt.Sprintf("%s$%s", l.currentFunction, name)
}

func (l *Lowerer) emitLabelDecl(op LabelDecl) []asm.Instruction {
	return []asm.Instruction{asm.LabelDecl{Name: l.scopedLabel(op.Name)}}
}

func (l *Lowerer) emitGotoOp(op GotoOp) []asm.Instruction {
	label := l.scopedLabel(op.Label)

	if op.Jump == Unconditional {
		return []asm.Instruction{
			asm.AInstruction{Location: label},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}
	}

	return append(popD(),
		asm.AInstruction{Location: label},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	)
}

// ----------------------------------------------------------------------------
// Function / Call / Return

func (l *Lowerer) emitFuncDecl(op FuncDecl) []asm.Instruction {
	l.currentFunction = op.Name

	instructions := []asm.Instruction{asm.LabelDecl{Name: op.Name}}
	for i := uint8(0); i < op.NLocal; i++ {
		instructions = append(instructions,
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
		)
	}
	return instructions
}

// pushSegmentPointer pushes the value currently held by a built-in Hack symbol (LCL, ARG,
// THIS, THAT), used both to save the caller's frame on 'call' and as a shared building block.
func pushSegmentPointer(symbol string) []asm.Instruction {
	return append([]asm.Instruction{
		asm.AInstruction{Location: symbol},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}, pushD()...)
}

func (l *Lowerer) emitCall(op FuncCallOp) []asm.Instruction {
	retLabel := fmt.Sprintf("%s$ret.%d", l.currentFunction, l.returnCounter)
	l.returnCounter++

	instructions := []asm.Instruction{
		asm.AInstruction{Location: retLabel},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	instructions = append(instructions, pushD()...)

	for _, symbol := range []string{"LCL", "ARG", "THIS", "THAT"} {
		instructions = append(instructions, pushSegmentPointer(symbol)...)
	}

	instructions = append(instructions,
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: fmt.Sprint(op.NArgs)},
		asm.CInstruction{Dest: "D", Comp: "D+A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},

		asm.LabelDecl{Name: retLabel},
	)

	return instructions
}

// restoreFromFrame pops the next saved segment pointer walking R13 (endFrame) downward and
// restores it into 'symbol', used four times (THAT, THIS, ARG, LCL) by 'return'.
func restoreFromFrame(symbol string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: symbol},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

func (l *Lowerer) emitReturn() []asm.Instruction {
	instructions := []asm.Instruction{
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"}, // R13 = endFrame

		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"}, // R14 = retAddr

		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"}, // *ARG = pop()

		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"}, // SP = ARG+1
	}

	for _, symbol := range []string{"THAT", "THIS", "ARG", "LCL"} {
		instructions = append(instructions, restoreFromFrame(symbol)...)
	}

	instructions = append(instructions,
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)

	return instructions
}
