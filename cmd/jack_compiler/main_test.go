package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// These fixtures are inlined rather than compared against the course's built-in compiler
// via its external project directories and '.diff' files (neither part of this repository);
// expected VM output was hand-derived from pkg/jack.Lowerer's codegen rules.
func TestJackCompiler(t *testing.T) {
	t.Run("Main class with a single do statement", func(t *testing.T) {
		dir := t.TempDir()
		source := `class Main {
    function void main() {
        do Output.printInt(42);
        return;
    }
}
`
		input := filepath.Join(dir, "Main.jack")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("failed to write input fixture: %v", err)
		}

		status := Handler([]string{dir}, map[string]string{"stdlib": "true"})
		if status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
		if err != nil {
			t.Fatalf("error reading output file: %v", err)
		}
		lines := strings.Split(strings.TrimRight(string(compiled), "\n"), "\n")

		expected := []string{
			"function Main.main 0",
			"push constant 42",
			"call Output.printInt 1",
			"pop temp 0",
			"push constant 0",
			"return",
		}
		if len(lines) != len(expected) {
			t.Fatalf("expected %d VM ops, got %d: %v", len(expected), len(lines), lines)
		}
		for i, line := range lines {
			if line != expected[i] {
				t.Errorf("line %d: expected %q, got %q", i, expected[i], line)
			}
		}
	})

	t.Run("field accessor method", func(t *testing.T) {
		dir := t.TempDir()
		source := `class Point {
    field int x;

    method int getX() {
        return x;
    }
}
`
		input := filepath.Join(dir, "Point.jack")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("failed to write input fixture: %v", err)
		}

		status := Handler([]string{dir}, map[string]string{})
		if status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(filepath.Join(dir, "Point.vm"))
		if err != nil {
			t.Fatalf("error reading output file: %v", err)
		}
		lines := strings.Split(strings.TrimRight(string(compiled), "\n"), "\n")

		expected := []string{
			"function Point.getX 0",
			"push argument 0",
			"pop pointer 0",
			"push this 0",
			"return",
		}
		if len(lines) != len(expected) {
			t.Fatalf("expected %d VM ops, got %d: %v", len(expected), len(lines), lines)
		}
		for i, line := range lines {
			if line != expected[i] {
				t.Errorf("line %d: expected %q, got %q", i, expected[i], line)
			}
		}
	})

	t.Run("typecheck flag rejects an unresolved symbol", func(t *testing.T) {
		dir := t.TempDir()
		source := `class Broken {
    function void run() {
        do Nowhere.missing();
        return;
    }
}
`
		input := filepath.Join(dir, "Broken.jack")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("failed to write input fixture: %v", err)
		}

		status := Handler([]string{dir}, map[string]string{"typecheck": "true"})
		if status == 0 {
			t.Fatalf("expected a non-zero exit status for an unresolved class reference")
		}
	})

	t.Run("no .jack files found is an empty-program error", func(t *testing.T) {
		dir := t.TempDir()
		status := Handler([]string{dir}, map[string]string{})
		if status == 0 {
			t.Fatalf("expected a non-zero exit status when no .jack sources are found")
		}
	})
}
