package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// These fixtures are inlined rather than loaded from the course's external project
// directories (not part of this repository), so the test is self-contained and its
// expected binary was hand-derived from the Comp/Dest/Jump tables in pkg/hack.
func TestHackAssembler(t *testing.T) {
	test := func(t *testing.T, source string, expectedLines []string) {
		dir := t.TempDir()
		input := filepath.Join(dir, "prog.asm")
		output := filepath.Join(dir, "prog.hack")

		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("failed to write input fixture: %v", err)
		}

		status := Handler([]string{input}, map[string]string{"output": output})
		if status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("error reading output file %s: %v", output, err)
		}

		lines := strings.Split(strings.TrimRight(string(compiled), "\n"), "\n")
		if len(lines) != len(expectedLines) {
			t.Fatalf("expected %d instructions, got %d: %v", len(expectedLines), len(lines), lines)
		}
		for i, line := range lines {
			if len(line) != 16 {
				t.Errorf("line %d: expected 16 chars, got %d (%q)", i, len(line), line)
			}
			if line != expectedLines[i] {
				t.Errorf("line %d: expected %q, got %q", i, expectedLines[i], line)
			}
		}
	}

	t.Run("Max.asm classic", func(t *testing.T) {
		source := `@R0
D=M
@R1
D=D-M
@OUTPUT_FIRST
D;JGT
@R1
D=M
@OUTPUT_D
0;JMP
(OUTPUT_FIRST)
@R0
D=M
(OUTPUT_D)
@R2
M=D
(END)
@END
0;JMP
`
		// OUTPUT_FIRST binds to 10, OUTPUT_D to 12, END to 14 (labels occupy no slot).
		expected := []string{
			"0000000000000000", // @R0
			"1111110000010000", // D=M
			"0000000000000001", // @R1
			"1111010011010000", // D=D-M
			"0000000000001010", // @OUTPUT_FIRST (10)
			"1110001100000001", // D;JGT
			"0000000000000001", // @R1
			"1111110000010000", // D=M
			"0000000000001100", // @OUTPUT_D (12)
			"1110101010000111", // 0;JMP
			"0000000000000000", // @R0
			"1111110000010000", // D=M
			"0000000000000010", // @R2
			"1110001100001000", // M=D
			"0000000000001110", // @END (14)
			"1110101010000111", // 0;JMP
		}
		test(t, source, expected)
	})

	t.Run("variable allocation monotonicity", func(t *testing.T) {
		source := `@sum
M=0
@i
M=1
@sum
M=M+1
`
		// 'sum' is the first unseen symbol -> address 16, 'i' the second -> 17; the
		// second '@sum' must resolve back to the same address 16.
		expected := []string{
			"0000000000010000", // @sum (16)
			"1110101010001000", // M=0
			"0000000000010001", // @i (17)
			"1110111111001000", // M=1
			"0000000000010000", // @sum (16 again)
			"1111110111001000", // M=M+1
		}
		test(t, source, expected)
	})

	t.Run("combined dest and jump on a single C instruction", func(t *testing.T) {
		// "AM=M-1;JGT" exercises a C instruction that sets both a destination and a
		// jump condition in the same statement, a legal Hack assembly form even though
		// the VM translator itself never needs to emit one.
		source := "AM=M-1;JGT\n"
		expected := []string{
			"1111110010101001",
		}
		test(t, source, expected)
	})

	t.Run("missing input file is an I/O error", func(t *testing.T) {
		dir := t.TempDir()
		status := Handler([]string{filepath.Join(dir, "missing.asm")}, map[string]string{"output": filepath.Join(dir, "out.hack")})
		if status == 0 {
			t.Fatalf("expected non-zero exit status for missing input file")
		}
	})

	t.Run("missing output option is a usage error", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "prog.asm")
		if err := os.WriteFile(input, []byte("@0\n"), 0644); err != nil {
			t.Fatalf("failed to write input fixture: %v", err)
		}

		status := Handler([]string{input}, map[string]string{})
		if status == 0 {
			t.Fatalf("expected non-zero exit status when --output is missing")
		}
	})
}
