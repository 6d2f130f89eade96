package jack

import (
	"fmt"
	"strings"
)

// TypeChecker walks a 'jack.Program' verifying that every variable reference resolves in
// scope and every subroutine call targets a subroutine that actually exists.
//
// Per the language's dynamic-typing contract, this is deliberately an existence check, not
// a type inference pass: Jack itself performs no static type checking (the Jack OS enforces
// types at runtime), so the only semantic error this stage can catch ahead of time is a
// reference to something that was never declared.
type TypeChecker struct {
	program Program
	scopes  ScopeTable // Keeps track of the scopes and declared variables inside each one
}

// Initializes and returns to the caller a brand new 'TypeChecker' struct.
func NewTypeChecker(program Program) TypeChecker {
	return TypeChecker{program: program}
}

// Check walks every class in the program, failing fast on the first semantic violation
// found (no diagnostic aggregation, matching the rest of the pipeline's error taxonomy).
func (tc *TypeChecker) Check() (bool, error) {
	if len(tc.program) == 0 {
		return false, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		if _, err := tc.HandleClass(class); err != nil {
			return false, fmt.Errorf("error type-checking class '%s': %w", name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Class' and nested fields.
func (tc *TypeChecker) HandleClass(class Class) (bool, error) {
	tc.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	defer tc.scopes.PopClassScope()      // Reset the function name after processing

	for _, field := range class.Fields.Entries() {
		tc.scopes.RegisterVariable(field)
	}

	for _, subroutine := range class.Subroutines.Entries() {
		if _, err := tc.HandleSubroutine(subroutine); err != nil {
			return false, fmt.Errorf("error type-checking subroutine '%s' in class '%s': %w", subroutine.Name, class.Name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Subroutine' and nested fields.
func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) (bool, error) {
	tc.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine function being processed
	defer tc.scopes.PopSubroutineScope()           // Reset the function name after processing

	if subroutine.Type == Method {
		tc.scopes.RegisterVariable(Variable{Name: "this", Type: Parameter, DataType: Object})
	}

	// We add to the current scope also all of the arguments of the subroutine
	for _, arg := range subroutine.Arguments {
		tc.scopes.RegisterVariable(arg)
	}

	for _, stmt := range subroutine.Statements {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error type-checking nested statement %T: %w", stmt, err)
		}
	}

	return true, nil
}

// Generalized function to type-check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) (bool, error) {
	switch tStmt := stmt.(type) {
	case DoStmt:
		return tc.HandleExpression(tStmt.FuncCall)
	case VarStmt:
		return tc.HandleVarStmt(tStmt)
	case LetStmt:
		return tc.HandleLetStmt(tStmt)
	case IfStmt:
		return tc.HandleIfStmt(tStmt)
	case WhileStmt:
		return tc.HandleWhileStmt(tStmt)
	case ReturnStmt:
		if tStmt.Expr == nil {
			return true, nil
		}
		return tc.HandleExpression(tStmt.Expr)
	default:
		return false, fmt.Errorf("unrecognized statement: %T", stmt)
	}
}

func (tc *TypeChecker) HandleVarStmt(statement VarStmt) (bool, error) {
	for _, variable := range statement.Vars {
		tc.scopes.RegisterVariable(variable)
	}
	return true, nil
}

func (tc *TypeChecker) HandleLetStmt(statement LetStmt) (bool, error) {
	if _, err := tc.HandleExpression(statement.Rhs); err != nil {
		return false, fmt.Errorf("error type-checking RHS expression: %w", err)
	}
	if _, err := tc.HandleExpression(statement.Lhs); err != nil {
		return false, fmt.Errorf("error type-checking LHS expression: %w", err)
	}
	return true, nil
}

func (tc *TypeChecker) HandleIfStmt(statement IfStmt) (bool, error) {
	if _, err := tc.HandleExpression(statement.Condition); err != nil {
		return false, fmt.Errorf("error type-checking if condition expression: %w", err)
	}
	for _, stmt := range statement.ThenBlock {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error type-checking statement in 'then' block: %w", err)
		}
	}
	for _, stmt := range statement.ElseBlock {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error type-checking statement in 'else' block: %w", err)
		}
	}
	return true, nil
}

func (tc *TypeChecker) HandleWhileStmt(statement WhileStmt) (bool, error) {
	if _, err := tc.HandleExpression(statement.Condition); err != nil {
		return false, fmt.Errorf("error type-checking while condition expression: %w", err)
	}
	for _, stmt := range statement.Block {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error type-checking statement in while block: %w", err)
		}
	}
	return true, nil
}

// Generalized function to type-check multiple expression types, verifying only that every
// name referenced (variable or subroutine) resolves to something declared in the program.
func (tc *TypeChecker) HandleExpression(expr Expression) (bool, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		if tExpr.Var == "this" {
			return true, nil
		}
		if _, _, err := tc.scopes.ResolveVariable(tExpr.Var); err != nil {
			return false, err
		}
		return true, nil

	case LiteralExpr:
		return true, nil

	case ArrayExpr:
		if _, _, err := tc.scopes.ResolveVariable(tExpr.Var); err != nil {
			return false, err
		}
		return tc.HandleExpression(tExpr.Index)

	case UnaryExpr:
		return tc.HandleExpression(tExpr.Rhs)

	case BinaryExpr:
		if _, err := tc.HandleExpression(tExpr.Lhs); err != nil {
			return false, err
		}
		return tc.HandleExpression(tExpr.Rhs)

	case FuncCallExpr:
		return tc.HandleFuncCallExpr(tExpr)

	default:
		return false, fmt.Errorf("unrecognized expression: %T", expr)
	}
}

// HandleFuncCallExpr resolves a subroutine call's target, without evaluating return types:
// a bare name must resolve to a subroutine of the enclosing class; a qualified name must
// either name a variable in scope (method dispatch) or an existing class (static dispatch).
func (tc *TypeChecker) HandleFuncCallExpr(expression FuncCallExpr) (bool, error) {
	for _, arg := range expression.Arguments {
		if _, err := tc.HandleExpression(arg); err != nil {
			return false, fmt.Errorf("error type-checking argument expression: %w", err)
		}
	}

	if !expression.IsExtCall {
		className := strings.Split(tc.scopes.GetScope(), ".")[0]
		class, exists := tc.program[className]
		if !exists {
			return false, fmt.Errorf("class definition not found for '%s'", className)
		}
		if _, exists := class.Subroutines.Get(expression.FuncName); !exists {
			return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, className)
		}
		return true, nil
	}

	if _, variable, err := tc.scopes.ResolveVariable(expression.Var); err == nil {
		class, exists := tc.program[variable.ClassName]
		if !exists {
			return false, fmt.Errorf("class definition not found for '%s'", variable.ClassName)
		}
		if _, exists := class.Subroutines.Get(expression.FuncName); !exists {
			return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, variable.ClassName)
		}
		return true, nil
	}

	class, exists := tc.program[expression.Var]
	if !exists {
		return false, fmt.Errorf("undeclared reference '%s'", expression.Var)
	}
	if _, exists := class.Subroutines.Get(expression.FuncName); !exists {
		return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, class.Name)
	}
	return true, nil
}
