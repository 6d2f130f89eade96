package vm_test

import (
	"testing"

	"github.com/hmny-labs/n2t-toolchain/pkg/asm"
	"github.com/hmny-labs/n2t-toolchain/pkg/vm"
)

func lower(t *testing.T, module vm.Module) []asm.Instruction {
	t.Helper()
	lowerer := vm.NewLowerer(vm.Program{"Test.vm": module})
	program, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("unexpected lowering error: %v", err)
	}
	return program
}

func TestPushConstant(t *testing.T) {
	program := lower(t, vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7}})

	expected := []asm.Instruction{
		asm.AInstruction{Location: "7"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
	if len(program) != len(expected) {
		t.Fatalf("expected %d instructions, got %d: %#v", len(expected), len(program), program)
	}
	for i := range expected {
		if program[i] != expected[i] {
			t.Errorf("instruction %d: expected %#v, got %#v", i, expected[i], program[i])
		}
	}
}

func TestArithmeticAddStackDiscipline(t *testing.T) {
	// push constant 7; push constant 8; add -- two pushes, one add (net: one value on stack)
	program := lower(t, vm.Module{
		vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7},
		vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 8},
		vm.ArithmeticOp{Operation: vm.Add},
	})

	// Exactly one 'M+D' computation (the add itself) and no unresolved jumps, since
	// 'add' requires no comparison label.
	addCount := 0
	for _, instr := range program {
		if c, ok := instr.(asm.CInstruction); ok && c.Comp == "M+D" {
			addCount++
		}
	}
	if addCount != 1 {
		t.Errorf("expected exactly 1 'M+D' computation, got %d", addCount)
	}

	tail := program[len(program)-5:]
	expectedTail := []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: "M+D"},
	}
	for i := range expectedTail {
		if tail[i] != expectedTail[i] {
			t.Errorf("tail instruction %d: expected %#v, got %#v", i, expectedTail[i], tail[i])
		}
	}
}

func TestCompareLabelUniqueness(t *testing.T) {
	program := lower(t, vm.Module{
		vm.ArithmeticOp{Operation: vm.Lt},
		vm.ArithmeticOp{Operation: vm.Gt},
	})

	labels := map[string]bool{}
	for _, instr := range program {
		if l, ok := instr.(asm.LabelDecl); ok {
			if labels[l.Name] {
				t.Errorf("label %q emitted more than once", l.Name)
			}
			labels[l.Name] = true
		}
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 distinct comparison labels, got %d: %v", len(labels), labels)
	}
}

func TestStaticSegmentScoping(t *testing.T) {
	lowerer := vm.NewLowerer(vm.Program{
		"Foo.vm": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}},
		"Bar.vm": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}},
	})
	program, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("unexpected lowering error: %v", err)
	}

	var fooSymbol, barSymbol bool
	for _, instr := range program {
		if a, ok := instr.(asm.AInstruction); ok {
			if a.Location == "Foo.0" {
				fooSymbol = true
			}
			if a.Location == "Bar.0" {
				barSymbol = true
			}
		}
	}
	if !fooSymbol || !barSymbol {
		t.Fatalf("expected distinct '@Foo.0' and '@Bar.0' symbols, got program: %#v", program)
	}
}

func TestLabelFunctionScoping(t *testing.T) {
	program := lower(t, vm.Module{
		vm.FuncDecl{Name: "Main.loop", NLocal: 0},
		vm.LabelDecl{Name: "START"},
		vm.GotoOp{Jump: vm.Unconditional, Label: "START"},
	})

	wantLabel, wantGoto := false, false
	for i, instr := range program {
		if l, ok := instr.(asm.LabelDecl); ok && l.Name == "Main.loop$START" {
			wantLabel = true
		}
		if a, ok := instr.(asm.AInstruction); ok && a.Location == "Main.loop$START" {
			if i+1 >= len(program) {
				t.Fatalf("goto A-instruction has no following C-instruction")
			}
			if c, ok := program[i+1].(asm.CInstruction); ok && c.Jump == "JMP" {
				wantGoto = true
			}
		}
	}
	if !wantLabel || !wantGoto {
		t.Fatalf("expected function-scoped label 'Main.loop$START' to be declared and jumped to, got: %#v", program)
	}
}

func TestFunctionDeclZeroesLocals(t *testing.T) {
	program := lower(t, vm.Module{vm.FuncDecl{Name: "Main.test", NLocal: 2}})

	if len(program) != 11 { // 1 label + 2 * (push-zero sequence of 5 instructions)
		t.Fatalf("expected 11 instructions (label + 2x5 zero-init), got %d: %#v", len(program), program)
	}
	if l, ok := program[0].(asm.LabelDecl); !ok || l.Name != "Main.test" {
		t.Errorf("expected first instruction to declare label 'Main.test', got %#v", program[0])
	}
}

func TestCallSavesFrameAndJumps(t *testing.T) {
	program := lower(t, vm.Module{
		vm.FuncDecl{Name: "Main.main", NLocal: 0},
		vm.FuncCallOp{Name: "Foo.bar", NArgs: 2},
	})

	// Strip the FuncDecl's own instruction (the '(Main.main)' label).
	callSeq := program[1:]

	retLabel := "Main.main$ret.0"
	first, ok := callSeq[0].(asm.AInstruction)
	if !ok || first.Location != retLabel {
		t.Fatalf("expected call sequence to start by pushing the return label %q, got %#v", retLabel, callSeq[0])
	}

	last := callSeq[len(callSeq)-1]
	if l, ok := last.(asm.LabelDecl); !ok || l.Name != retLabel {
		t.Errorf("expected call sequence to end with the return label declaration, got %#v", last)
	}

	jumpsToCallee := false
	for i, instr := range callSeq {
		if a, ok := instr.(asm.AInstruction); ok && a.Location == "Foo.bar" {
			if c, ok := callSeq[i+1].(asm.CInstruction); ok && c.Jump == "JMP" {
				jumpsToCallee = true
			}
		}
	}
	if !jumpsToCallee {
		t.Errorf("expected an unconditional jump to 'Foo.bar'")
	}

	// The four saved-frame pointers must be pushed (read, not written) in order, right
	// after the return label. A push-read looks like 'D=M' following the A-instruction;
	// 'ARG'/'LCL' are also written later (to install the new frame), which reads as
	// 'M=D' and must not be confused with the save here.
	wantOrder := []string{"LCL", "ARG", "THIS", "THAT"}
	gotOrder := []string{}
	for i, instr := range callSeq {
		a, ok := instr.(asm.AInstruction)
		if !ok || i+1 >= len(callSeq) {
			continue
		}
		c, ok := callSeq[i+1].(asm.CInstruction)
		if !ok || c.Dest != "D" || c.Comp != "M" {
			continue
		}
		for _, sym := range wantOrder {
			if a.Location == sym {
				gotOrder = append(gotOrder, sym)
			}
		}
	}
	if len(gotOrder) != len(wantOrder) {
		t.Fatalf("expected exactly 4 saved-pointer references, got %v", gotOrder)
	}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Errorf("expected saved pointers in order %v, got %v", wantOrder, gotOrder)
		}
	}
}

func TestReturnRestoresFrameOrder(t *testing.T) {
	program := lower(t, vm.Module{
		vm.FuncDecl{Name: "Foo.bar", NLocal: 0},
		vm.ReturnOp{},
	})

	// Strip the leading FuncDecl label.
	retSeq := program[1:]

	last := retSeq[len(retSeq)-1]
	if c, ok := last.(asm.CInstruction); !ok || c.Jump != "JMP" {
		t.Fatalf("expected 'return' to end with an unconditional jump, got %#v", last)
	}

	// THAT, THIS, ARG and LCL are restored in that order by walking the saved frame
	// downward; each restore references its destination symbol exactly once.
	wantOrder := []string{"THAT", "THIS", "ARG", "LCL"}
	gotOrder := []string{}
	seen := map[string]bool{}
	for i, instr := range retSeq {
		if a, ok := instr.(asm.AInstruction); ok {
			for _, sym := range wantOrder {
				if a.Location == sym && !seen[sym] {
					// Confirm it's a restore (dest = M, comp = D immediately follows).
					if c, ok := retSeq[i+1].(asm.CInstruction); ok && c.Dest == "M" && c.Comp == "D" {
						gotOrder = append(gotOrder, sym)
						seen[sym] = true
					}
				}
			}
		}
	}
	if len(gotOrder) != len(wantOrder) {
		t.Fatalf("expected all 4 segment pointers restored, got %v", gotOrder)
	}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Errorf("expected restore order %v, got %v", wantOrder, gotOrder)
		}
	}
}

func TestBootstrapEmittedWhenSysVmPresent(t *testing.T) {
	lowerer := vm.NewLowerer(vm.Program{"Sys.vm": vm.Module{vm.FuncDecl{Name: "Sys.init", NLocal: 0}}})
	program, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("unexpected lowering error: %v", err)
	}

	expectedPrefix := []asm.Instruction{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	if len(program) < len(expectedPrefix) {
		t.Fatalf("program too short to contain bootstrap prefix: %#v", program)
	}
	for i := range expectedPrefix {
		if program[i] != expectedPrefix[i] {
			t.Errorf("bootstrap instruction %d: expected %#v, got %#v", i, expectedPrefix[i], program[i])
		}
	}

	jumpsToSysInit := false
	for i, instr := range program {
		if a, ok := instr.(asm.AInstruction); ok && a.Location == "Sys.init" {
			if c, ok := program[i+1].(asm.CInstruction); ok && c.Jump == "JMP" {
				jumpsToSysInit = true
			}
		}
	}
	if !jumpsToSysInit {
		t.Errorf("expected bootstrap to jump into 'Sys.init'")
	}
}

func TestNoBootstrapWithoutSysVm(t *testing.T) {
	lowerer := vm.NewLowerer(vm.Program{"Main.vm": vm.Module{vm.FuncDecl{Name: "Main.main", NLocal: 0}}})
	program, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("unexpected lowering error: %v", err)
	}
	if a, ok := program[0].(asm.AInstruction); !ok || a.Location != "Main.main" {
		if l, ok := program[0].(asm.LabelDecl); !ok || l.Name != "Main.main" {
			t.Errorf("expected no bootstrap prefix, program should start with 'Main.main', got %#v", program[0])
		}
	}
}
