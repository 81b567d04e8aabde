// Package parser implements the language's parser.
//
// The parser converts a stream of tokens (from the lexer) into an
// abstract syntax tree. It performs syntactic analysis to ensure the
// code follows the grammar rules of the surface language.
//
// Parser Architecture:
//
// The parser uses recursive descent for statements and a Pratt
// (precedence-climbing) parser for expressions:
//  1. Each grammar rule corresponds to a parsing function.
//  2. The parser decides what to parse from the current token (curTok);
//     peekTok is kept one token ahead, but no parsing decision reads it.
//  3. Functions call each other recursively to handle nested structures.
//
// Token Management:
//
// The parser maintains two tokens at all times:
//   - curTok: the current token being examined
//   - peekTok: the next token (one token lookahead)
//
// Error Handling:
//
// The parser accumulates errors in the `errors` slice rather than
// stopping at the first error, so one pass can report multiple syntax
// errors.
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/loxvm/pkg/ast"
	"github.com/kristofer/loxvm/pkg/lexer"
)

// precedence levels, lowest to highest.
const (
	precNone       = iota
	precAssignment // =
	precOr         // or
	precAnd        // and
	precEquality   // == !=
	precComparison // < > <= >=
	precTerm       // + -
	precFactor     // * /
	precUnary      // ! -
	precCall       // . ()
	precPrimary
)

var precedences = map[lexer.TokenType]int{
	lexer.TokenEqual:        precAssignment,
	lexer.TokenOr:           precOr,
	lexer.TokenAnd:          precAnd,
	lexer.TokenEqualEqual:   precEquality,
	lexer.TokenBangEqual:    precEquality,
	lexer.TokenLess:         precComparison,
	lexer.TokenLessEqual:    precComparison,
	lexer.TokenGreater:      precComparison,
	lexer.TokenGreaterEqual: precComparison,
	lexer.TokenPlus:         precTerm,
	lexer.TokenMinus:        precTerm,
	lexer.TokenStar:         precFactor,
	lexer.TokenSlash:        precFactor,
	lexer.TokenLParen:       precCall,
	lexer.TokenDot:          precCall,
	lexer.TokenLBracket:     precCall,
}

// Parser is a single-use, stateful parser: create a new one for each
// source file or code snippet.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a parser over the given source text.
func New(input string) *Parser {
	p := &Parser{l: lexer.New(input)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) addError(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.curTok.Line, fmt.Sprintf(format, args...)))
}

// Errors returns every syntax error accumulated during Parse.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.curTok.Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peekTok.Type == t }

// expect advances past t if curTok matches it, else records an error and
// does not advance.
func (p *Parser) expect(t lexer.TokenType, context string) bool {
	if p.curIs(t) {
		p.nextToken()
		return true
	}
	p.addError("expected %s %s, got %s", t, context, p.curTok.Type)
	return false
}

// Parse parses the whole token stream into a Program.
func (p *Parser) Parse() (*ast.Program, error) {
	program := &ast.Program{}
	for !p.curIs(lexer.TokenEOF) {
		stmt := p.parseDeclaration()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
	}
	if len(p.errors) > 0 {
		return program, fmt.Errorf("%d parse error(s): %v", len(p.errors), p.errors)
	}
	return program, nil
}

func (p *Parser) parseDeclaration() ast.Statement {
	switch p.curTok.Type {
	case lexer.TokenVar:
		return p.parseVarStmt()
	case lexer.TokenFun:
		return p.parseFunStmt("function")
	case lexer.TokenClass:
		return p.parseClassStmt()
	default:
		return p.parseStatement()
	}
}

func (p *Parser) parseVarStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken() // consume 'var'
	if !p.curIs(lexer.TokenIdentifier) {
		p.addError("expected variable name")
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()

	var init ast.Expression
	if p.curIs(lexer.TokenEqual) {
		p.nextToken()
		init = p.parseExpression(precAssignment)
	}
	p.expect(lexer.TokenSemicolon, "after variable declaration")
	return &ast.VarStmt{Name: name, Init: init, Line: line}
}

func (p *Parser) parseFunStmt(kind string) *ast.FunStmt {
	line := p.curTok.Line
	p.nextToken() // consume 'fun'; methods go through parseMethod instead
	if !p.curIs(lexer.TokenIdentifier) {
		p.addError("expected %s name", kind)
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()

	p.expect(lexer.TokenLParen, "after "+kind+" name")
	var params []string
	for !p.curIs(lexer.TokenRParen) && !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenIdentifier) {
			params = append(params, p.curTok.Literal)
			p.nextToken()
		}
		if p.curIs(lexer.TokenComma) {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen, "after parameters")
	p.expect(lexer.TokenLBrace, "before "+kind+" body")

	body := p.parseBlockStatements()
	return &ast.FunStmt{Name: name, Params: params, Body: body, Line: line}
}

func (p *Parser) parseClassStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken() // consume 'class'
	if !p.curIs(lexer.TokenIdentifier) {
		p.addError("expected class name")
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()

	var superclass string
	if p.curIs(lexer.TokenLess) {
		p.nextToken()
		if !p.curIs(lexer.TokenIdentifier) {
			p.addError("expected superclass name")
		} else {
			superclass = p.curTok.Literal
			p.nextToken()
		}
	}

	p.expect(lexer.TokenLBrace, "before class body")
	var methods []*ast.FunStmt
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		methods = append(methods, p.parseMethod())
	}
	p.expect(lexer.TokenRBrace, "after class body")

	return &ast.ClassStmt{Name: name, Superclass: superclass, Methods: methods, Line: line}
}

// parseMethod parses `name(params) { body }` — like parseFunStmt but
// without a leading `fun` keyword, since methods are bare inside a class
// body.
func (p *Parser) parseMethod() *ast.FunStmt {
	line := p.curTok.Line
	if !p.curIs(lexer.TokenIdentifier) {
		p.addError("expected method name")
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()

	p.expect(lexer.TokenLParen, "after method name")
	var params []string
	for !p.curIs(lexer.TokenRParen) && !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenIdentifier) {
			params = append(params, p.curTok.Literal)
			p.nextToken()
		}
		if p.curIs(lexer.TokenComma) {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen, "after parameters")
	p.expect(lexer.TokenLBrace, "before method body")

	body := p.parseBlockStatements()
	return &ast.FunStmt{Name: name, Params: params, Body: body, Line: line}
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok.Type {
	case lexer.TokenPrint:
		return p.parsePrintStmt()
	case lexer.TokenLBrace:
		line := p.curTok.Line
		p.nextToken()
		return &ast.Block{Statements: p.parseBlockStatements(), Line: line}
	case lexer.TokenIf:
		return p.parseIfStmt()
	case lexer.TokenWhile:
		return p.parseWhileStmt()
	case lexer.TokenFor:
		return p.parseForStmt()
	case lexer.TokenReturn:
		return p.parseReturnStmt()
	default:
		return p.parseExpressionStmt()
	}
}

// parseBlockStatements parses statements until a matching '}', which it
// consumes. curTok must be positioned just past the opening '{'.
func (p *Parser) parseBlockStatements() []ast.Statement {
	var stmts []ast.Statement
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		stmt := p.parseDeclaration()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.expect(lexer.TokenRBrace, "after block")
	return stmts
}

func (p *Parser) parsePrintStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken()
	expr := p.parseExpression(precAssignment)
	p.expect(lexer.TokenSemicolon, "after value")
	return &ast.PrintStmt{Expr: expr, Line: line}
}

func (p *Parser) parseIfStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken()
	p.expect(lexer.TokenLParen, "after 'if'")
	cond := p.parseExpression(precAssignment)
	p.expect(lexer.TokenRParen, "after condition")
	then := p.parseStatement()
	var elseStmt ast.Statement
	if p.curIs(lexer.TokenElse) {
		p.nextToken()
		elseStmt = p.parseStatement()
	}
	return &ast.If{Condition: cond, Then: then, Else: elseStmt, Line: line}
}

func (p *Parser) parseWhileStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken()
	p.expect(lexer.TokenLParen, "after 'while'")
	cond := p.parseExpression(precAssignment)
	p.expect(lexer.TokenRParen, "after condition")
	body := p.parseStatement()
	return &ast.While{Condition: cond, Body: body, Line: line}
}

// parseForStmt desugars `for (init; cond; post) body` into a Block
// containing init followed by a While whose body is [body, post], the
// same desugaring clox's front end performs.
func (p *Parser) parseForStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken()
	p.expect(lexer.TokenLParen, "after 'for'")

	var initializer ast.Statement
	switch {
	case p.curIs(lexer.TokenSemicolon):
		p.nextToken()
	case p.curIs(lexer.TokenVar):
		initializer = p.parseVarStmt()
	default:
		initializer = p.parseExpressionStmt()
	}

	var condition ast.Expression
	if !p.curIs(lexer.TokenSemicolon) {
		condition = p.parseExpression(precAssignment)
	}
	p.expect(lexer.TokenSemicolon, "after loop condition")

	var post ast.Expression
	if !p.curIs(lexer.TokenRParen) {
		post = p.parseExpression(precAssignment)
	}
	p.expect(lexer.TokenRParen, "after for clauses")

	body := p.parseStatement()
	if post != nil {
		body = &ast.Block{Statements: []ast.Statement{body, &ast.ExpressionStmt{Expr: post, Line: line}}, Line: line}
	}
	if condition == nil {
		condition = &ast.BoolLiteral{Value: true, Line: line}
	}
	loop := ast.Statement(&ast.While{Condition: condition, Body: body, Line: line})
	if initializer != nil {
		loop = &ast.Block{Statements: []ast.Statement{initializer, loop}, Line: line}
	}
	return loop
}

func (p *Parser) parseReturnStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken()
	var value ast.Expression
	if !p.curIs(lexer.TokenSemicolon) {
		value = p.parseExpression(precAssignment)
	}
	p.expect(lexer.TokenSemicolon, "after return value")
	return &ast.ReturnStmt{Value: value, Line: line}
}

func (p *Parser) parseExpressionStmt() ast.Statement {
	line := p.curTok.Line
	expr := p.parseExpression(precAssignment)
	p.expect(lexer.TokenSemicolon, "after expression")
	return &ast.ExpressionStmt{Expr: expr, Line: line}
}

// parseExpression is the Pratt-parser entry point: parse a prefix
// expression, then fold in infix operators whose precedence is at least
// minPrec.
func (p *Parser) parseExpression(minPrec int) ast.Expression {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}
	for minPrec <= p.peekPrecedence() {
		switch p.curTok.Type {
		case lexer.TokenEqual:
			left = p.parseAssignment(left)
		case lexer.TokenOr, lexer.TokenAnd:
			left = p.parseLogical(left)
		case lexer.TokenPlus, lexer.TokenMinus, lexer.TokenStar, lexer.TokenSlash,
			lexer.TokenEqualEqual, lexer.TokenBangEqual, lexer.TokenLess, lexer.TokenLessEqual,
			lexer.TokenGreater, lexer.TokenGreaterEqual:
			left = p.parseBinary(left)
		case lexer.TokenLParen:
			left = p.parseCall(left)
		case lexer.TokenDot:
			left = p.parseGetOrSet(left)
		case lexer.TokenLBracket:
			left = p.parseIndex(left)
		default:
			return left
		}
	}
	return left
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.curTok.Type]; ok {
		return prec
	}
	return precNone
}

func (p *Parser) parsePrefix() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenNumber:
		return p.parseNumberLiteral()
	case lexer.TokenString:
		lit := &ast.StringLiteral{Value: p.curTok.Literal, Line: p.curTok.Line}
		p.nextToken()
		return lit
	case lexer.TokenTrue:
		lit := &ast.BoolLiteral{Value: true, Line: p.curTok.Line}
		p.nextToken()
		return lit
	case lexer.TokenFalse:
		lit := &ast.BoolLiteral{Value: false, Line: p.curTok.Line}
		p.nextToken()
		return lit
	case lexer.TokenNil:
		lit := &ast.NilLiteral{Line: p.curTok.Line}
		p.nextToken()
		return lit
	case lexer.TokenThis:
		lit := &ast.This{Line: p.curTok.Line}
		p.nextToken()
		return lit
	case lexer.TokenSuper:
		return p.parseSuper()
	case lexer.TokenIdentifier:
		id := &ast.Identifier{Name: p.curTok.Literal, Line: p.curTok.Line}
		p.nextToken()
		return id
	case lexer.TokenMinus, lexer.TokenBang:
		return p.parseUnary()
	case lexer.TokenLParen:
		p.nextToken()
		expr := p.parseExpression(precAssignment)
		p.expect(lexer.TokenRParen, "after expression")
		return expr
	case lexer.TokenLBracket:
		return p.parseListLiteral()
	default:
		p.addError("unexpected token %s", p.curTok.Type)
		p.nextToken()
		return nil
	}
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	line := p.curTok.Line
	v, err := strconv.ParseFloat(p.curTok.Literal, 64)
	if err != nil {
		p.addError("invalid number literal %q", p.curTok.Literal)
	}
	p.nextToken()
	return &ast.NumberLiteral{Value: v, Line: line}
}

func (p *Parser) parseUnary() ast.Expression {
	line := p.curTok.Line
	op := p.curTok.Literal
	p.nextToken()
	operand := p.parseExpression(precUnary)
	return &ast.Unary{Operator: op, Operand: operand, Line: line}
}

func (p *Parser) parseSuper() ast.Expression {
	line := p.curTok.Line
	p.nextToken() // consume 'super'
	p.expect(lexer.TokenDot, "after 'super'")
	if !p.curIs(lexer.TokenIdentifier) {
		p.addError("expected superclass method name")
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()
	return &ast.Super{Name: name, Line: line}
}

func (p *Parser) parseListLiteral() ast.Expression {
	line := p.curTok.Line
	p.nextToken() // consume '['
	var elems []ast.Expression
	for !p.curIs(lexer.TokenRBracket) && !p.curIs(lexer.TokenEOF) {
		elems = append(elems, p.parseExpression(precAssignment))
		if p.curIs(lexer.TokenComma) {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRBracket, "after list elements")
	return &ast.ListLiteral{Elements: elems, Line: line}
}

func (p *Parser) parseAssignment(left ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.nextToken() // consume '='
	value := p.parseExpression(precAssignment)

	switch target := left.(type) {
	case *ast.Identifier:
		return &ast.Assign{Name: target.Name, Value: value, Line: line}
	case *ast.Get:
		return &ast.Set{Object: target.Object, Name: target.Name, Value: value, Line: line}
	case *ast.Index:
		return &ast.IndexSet{Object: target.Object, Index: target.Index, Value: value, Line: line}
	default:
		p.addError("invalid assignment target")
		return value
	}
}

func (p *Parser) parseLogical(left ast.Expression) ast.Expression {
	op := p.curTok.Literal
	line := p.curTok.Line
	prec := p.peekPrecedence()
	p.nextToken()
	right := p.parseExpression(prec + 1)
	return &ast.Logical{Left: left, Operator: op, Right: right, Line: line}
}

func (p *Parser) parseBinary(left ast.Expression) ast.Expression {
	op := p.curTok.Literal
	line := p.curTok.Line
	prec := p.peekPrecedence()
	p.nextToken()
	right := p.parseExpression(prec + 1)
	return &ast.Binary{Left: left, Operator: op, Right: right, Line: line}
}

func (p *Parser) parseCall(left ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.nextToken() // consume '('
	var args []ast.Expression
	for !p.curIs(lexer.TokenRParen) && !p.curIs(lexer.TokenEOF) {
		args = append(args, p.parseExpression(precAssignment))
		if p.curIs(lexer.TokenComma) {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen, "after arguments")
	return &ast.Call{Callee: left, Args: args, Line: line}
}

func (p *Parser) parseGetOrSet(left ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.nextToken() // consume '.'
	if !p.curIs(lexer.TokenIdentifier) {
		p.addError("expected property name after '.'")
		return left
	}
	name := p.curTok.Literal
	p.nextToken()
	return &ast.Get{Object: left, Name: name, Line: line}
}

func (p *Parser) parseIndex(left ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.nextToken() // consume '['
	idx := p.parseExpression(precAssignment)
	p.expect(lexer.TokenRBracket, "after index")
	return &ast.Index{Object: left, Index: idx, Line: line}
}
