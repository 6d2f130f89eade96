package jack

import (
	"fmt"
	"io"

	"github.com/hmny-labs/n2t-toolchain/pkg/utils"
)

// ----------------------------------------------------------------------------
// Jack Parser

// This section defines the Parser for the nand2tetris Jack language.
//
// Unlike the VM and Hack assembly parsers (which lean on the 'goparsec' combinator library
// for their flat, line-oriented grammars), Jack nests expressions inside statements inside
// subroutines inside classes, so it's handled with a straightforward hand-rolled
// recursive-descent parser walking the 'Token' stream produced by the 'Tokenizer'.
type Parser struct {
	tokens []Token
	pos    int

	lexErr error // Deferred tokenizer failure, surfaced on the first 'Parse' call
}

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	tz := NewTokenizer(r)
	tokens, err := tz.Tokenize()
	if err != nil {
		tokens = []Token{{Kind: TkEOF}}
	}
	return Parser{tokens: tokens, lexErr: err}
}

// Parser entrypoint, walks the whole token stream and returns the resulting 'Class'.
func (p *Parser) Parse() (Class, error) {
	if p.lexErr != nil {
		return Class{}, fmt.Errorf("lexical error: %w", p.lexErr)
	}
	return p.parseClass()
}

func (p *Parser) current() Token { return p.tokens[p.pos] }

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) isKeyword(kw string) bool {
	tok := p.current()
	return tok.Kind == TkKeyword && tok.Value == kw
}

func (p *Parser) isSymbol(sym string) bool {
	tok := p.current()
	return tok.Kind == TkSymbol && tok.Value == sym
}

func (p *Parser) expectKeyword(kw string) (Token, error) {
	if !p.isKeyword(kw) {
		return Token{}, p.errorf("expected keyword '%s'", kw)
	}
	return p.advance(), nil
}

func (p *Parser) expectSymbol(sym string) (Token, error) {
	if !p.isSymbol(sym) {
		return Token{}, p.errorf("expected symbol '%s'", sym)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent() (Token, error) {
	if p.current().Kind != TkIdent {
		return Token{}, p.errorf("expected identifier")
	}
	return p.advance(), nil
}

func (p *Parser) errorf(format string, args ...any) error {
	tok := p.current()
	prefix := fmt.Sprintf("%d:%d: ", tok.Line, tok.Column)
	return fmt.Errorf(prefix+format+" (found '%s')", append(args, tok.Value)...)
}

// ----------------------------------------------------------------------------
// Class grammar

func (p *Parser) parseClass() (Class, error) {
	if _, err := p.expectKeyword("class"); err != nil {
		return Class{}, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return Class{}, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return Class{}, err
	}

	class := Class{
		Name:        name.Value,
		Fields:      utils.OrderedMap[string, Variable]{},
		Subroutines: utils.OrderedMap[string, Subroutine]{},
	}

	for p.isKeyword("static") || p.isKeyword("field") {
		fields, err := p.parseClassVarDec()
		if err != nil {
			return Class{}, err
		}
		for _, field := range fields {
			class.Fields.Set(field.Name, field)
		}
	}

	for p.isKeyword("constructor") || p.isKeyword("function") || p.isKeyword("method") {
		subroutine, err := p.parseSubroutineDec(class.Name)
		if err != nil {
			return Class{}, err
		}
		class.Subroutines.Set(subroutine.Name, subroutine)
	}

	if _, err := p.expectSymbol("}"); err != nil {
		return Class{}, err
	}
	return class, nil
}

func (p *Parser) parseClassVarDec() ([]Variable, error) {
	kindTok := p.advance() // 'static' or 'field'
	varType := Field
	if kindTok.Value == "static" {
		varType = Static
	}

	dataType, className, err := p.parseType()
	if err != nil {
		return nil, err
	}

	vars := []Variable{}
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		vars = append(vars, Variable{Name: name.Value, Type: varType, DataType: dataType, ClassName: className})

		if p.isSymbol(",") {
			p.advance()
			continue
		}
		break
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return vars, nil
}

// parseType consumes a primitive or class-name type and returns the corresponding
// 'DataType', along with the class name when the type refers to an object.
func (p *Parser) parseType() (DataType, string, error) {
	tok := p.current()

	switch {
	case tok.Kind == TkKeyword && tok.Value == "int":
		p.advance()
		return Int, "", nil
	case tok.Kind == TkKeyword && tok.Value == "char":
		p.advance()
		return Char, "", nil
	case tok.Kind == TkKeyword && tok.Value == "boolean":
		p.advance()
		return Bool, "", nil
	case tok.Kind == TkKeyword && tok.Value == "void":
		p.advance()
		return Void, "", nil
	case tok.Kind == TkIdent:
		p.advance()
		return Object, tok.Value, nil
	default:
		return "", "", p.errorf("expected a type")
	}
}

func (p *Parser) parseSubroutineDec(enclosingClass string) (Subroutine, error) {
	kindTok := p.advance() // 'constructor', 'function' or 'method'
	var kind SubroutineType
	switch kindTok.Value {
	case "constructor":
		kind = Constructor
	case "method":
		kind = Method
	default:
		kind = Function
	}

	returnType, _, err := p.parseType()
	if err != nil {
		return Subroutine{}, err
	}

	name, err := p.expectIdent()
	if err != nil {
		return Subroutine{}, err
	}

	if _, err := p.expectSymbol("("); err != nil {
		return Subroutine{}, err
	}
	args, err := p.parseParameterList()
	if err != nil {
		return Subroutine{}, err
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return Subroutine{}, err
	}

	if _, err := p.expectSymbol("{"); err != nil {
		return Subroutine{}, err
	}

	locals := []Variable{}
	for p.isKeyword("var") {
		vars, err := p.parseVarDec()
		if err != nil {
			return Subroutine{}, err
		}
		locals = append(locals, vars...)
	}

	stmts, err := p.parseStatements()
	if err != nil {
		return Subroutine{}, err
	}
	// Local 'var' declarations become 'VarStmt's prepended to the body, matching the
	// VM lowering pass's expectation that every local is registered via a statement.
	if len(locals) > 0 {
		stmts = append([]Statement{VarStmt{Vars: locals}}, stmts...)
	}

	if _, err := p.expectSymbol("}"); err != nil {
		return Subroutine{}, err
	}

	return Subroutine{
		Name: name.Value, Type: kind, Return: returnType,
		Arguments: args, Statements: stmts,
	}, nil
}

func (p *Parser) parseParameterList() ([]Variable, error) {
	args := []Variable{}
	if p.isSymbol(")") {
		return args, nil
	}

	for {
		dataType, className, err := p.parseType()
		if err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		args = append(args, Variable{Name: name.Value, Type: Parameter, DataType: dataType, ClassName: className})

		if p.isSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	return args, nil
}

func (p *Parser) parseVarDec() ([]Variable, error) {
	if _, err := p.expectKeyword("var"); err != nil {
		return nil, err
	}
	dataType, className, err := p.parseType()
	if err != nil {
		return nil, err
	}

	vars := []Variable{}
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		vars = append(vars, Variable{Name: name.Value, Type: Local, DataType: dataType, ClassName: className})

		if p.isSymbol(",") {
			p.advance()
			continue
		}
		break
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return vars, nil
}

// ----------------------------------------------------------------------------
// Statement grammar

func (p *Parser) parseStatements() ([]Statement, error) {
	stmts := []Statement{}
	for p.isKeyword("let") || p.isKeyword("if") || p.isKeyword("while") ||
		p.isKeyword("do") || p.isKeyword("return") {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.isKeyword("let"):
		return p.parseLetStatement()
	case p.isKeyword("if"):
		return p.parseIfStatement()
	case p.isKeyword("while"):
		return p.parseWhileStatement()
	case p.isKeyword("do"):
		return p.parseDoStatement()
	case p.isKeyword("return"):
		return p.parseReturnStatement()
	default:
		return nil, p.errorf("expected a statement")
	}
}

func (p *Parser) parseLetStatement() (Statement, error) {
	p.advance() // 'let'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var lhs Expression = VarExpr{Var: name.Value}
	if p.isSymbol("[") {
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		lhs = ArrayExpr{Var: name.Value, Index: index}
	}

	if _, err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(";"); err != nil {
		return nil, err
	}

	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

func (p *Parser) parseIfStatement() (Statement, error) {
	p.advance() // 'if'
	if _, err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	elseBlock := []Statement{}
	if p.isKeyword("else") {
		p.advance()
		if _, err := p.expectSymbol("{"); err != nil {
			return nil, err
		}
		elseBlock, err = p.parseStatements()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
	}

	return IfStmt{Condition: cond, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

func (p *Parser) parseWhileStatement() (Statement, error) {
	p.advance() // 'while'
	if _, err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	block, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return WhileStmt{Condition: cond, Block: block}, nil
}

func (p *Parser) parseDoStatement() (Statement, error) {
	p.advance() // 'do'
	call, err := p.parseSubroutineCall()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return DoStmt{FuncCall: call}, nil
}

func (p *Parser) parseReturnStatement() (Statement, error) {
	p.advance() // 'return'
	if p.isSymbol(";") {
		p.advance()
		return ReturnStmt{}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return ReturnStmt{Expr: expr}, nil
}

// ----------------------------------------------------------------------------
// Expression grammar
//
// Jack doesn't have operator precedence: 'expression: term (op term)*' is evaluated
// strictly left to right, so the binary chain folds into a left-leaning tree as it parses.

var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

func (p *Parser) parseExpression() (Expression, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		op, isOp := binaryOps[tok.Value]
		if tok.Kind != TkSymbol || !isOp {
			break
		}
		p.advance()

		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Type: op, Lhs: lhs, Rhs: rhs}
	}

	return lhs, nil
}

func (p *Parser) parseTerm() (Expression, error) {
	tok := p.current()

	switch {
	case tok.Kind == TkInt:
		p.advance()
		return LiteralExpr{Type: Int, Value: tok.Value}, nil

	case tok.Kind == TkString:
		p.advance()
		return LiteralExpr{Type: String, Value: tok.Value}, nil

	case p.isKeyword("true") || p.isKeyword("false"):
		p.advance()
		return LiteralExpr{Type: Bool, Value: tok.Value}, nil

	case p.isKeyword("null"):
		p.advance()
		return LiteralExpr{Type: Null, Value: "null"}, nil

	case p.isKeyword("this"):
		p.advance()
		return VarExpr{Var: "this"}, nil

	case p.isSymbol("-"):
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Type: Negation, Rhs: rhs}, nil

	case p.isSymbol("~"):
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Type: BoolNot, Rhs: rhs}, nil

	case p.isSymbol("("):
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return expr, nil

	case tok.Kind == TkIdent:
		return p.parseIdentTerm()

	default:
		return nil, p.errorf("expected a term")
	}
}

// parseIdentTerm disambiguates the four productions that can start with an identifier:
// a bare variable reference, an array access, a local subroutine call or a qualified one.
func (p *Parser) parseIdentTerm() (Expression, error) {
	name := p.advance() // the leading identifier

	switch {
	case p.isSymbol("["):
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		return ArrayExpr{Var: name.Value, Index: index}, nil

	case p.isSymbol("("):
		return p.parseSubroutineCallArgs(false, "", name.Value)

	case p.isSymbol("."):
		p.advance()
		funcName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return p.parseSubroutineCallArgs(true, name.Value, funcName.Value)

	default:
		return VarExpr{Var: name.Value}, nil
	}
}

// parseSubroutineCall parses a standalone call statement ('do' target), reusing the same
// disambiguation as 'parseIdentTerm' since the grammar productions are identical.
func (p *Parser) parseSubroutineCall() (FuncCallExpr, error) {
	expr, err := p.parseIdentTerm()
	if err != nil {
		return FuncCallExpr{}, err
	}
	call, ok := expr.(FuncCallExpr)
	if !ok {
		return FuncCallExpr{}, p.errorf("expected a subroutine call")
	}
	return call, nil
}

func (p *Parser) parseSubroutineCallArgs(isExtCall bool, varName, funcName string) (Expression, error) {
	if _, err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	args, err := p.parseExpressionList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return FuncCallExpr{IsExtCall: isExtCall, Var: varName, FuncName: funcName, Arguments: args}, nil
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	args := []Expression{}
	if p.isSymbol(")") {
		return args, nil
	}

	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, expr)

		if p.isSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	return args, nil
}
