// Package compiler compiles AST nodes into bytecode chunks the virtual
// machine can execute directly. It mirrors the single-pass code generator
// clox's compiler.c implements, adapted to a tree already built by
// pkg/parser: this package's job is purely the AST-to-Chunk half — scope
// tracking, local/upvalue resolution, jump-patching, and function/class
// compilation.
package compiler

import (
	"fmt"

	"github.com/kristofer/loxvm/pkg/ast"
	"github.com/kristofer/loxvm/pkg/bytecode"
	"github.com/kristofer/loxvm/pkg/vm"
)

type functionType int

const (
	funcTypeScript functionType = iota
	funcTypeFunction
	funcTypeMethod
	funcTypeInitializer
)

// local tracks one in-scope local variable: its source name, the lexical
// block depth it was declared at, and whether any nested function closed
// over it (which changes how its stack slot is torn down at scope exit).
type local struct {
	name     string
	depth    int
	captured bool
}

type upvalueRef struct {
	index   int
	isLocal bool
}

// Compiler compiles one function body (the top-level script counts as a
// function with no parameters). enclosing chains to the Compiler for the
// lexically surrounding function — the same linked structure clox's
// Compiler.enclosing pointer forms, used to resolve upvalues.
type Compiler struct {
	enclosing *Compiler

	function *vm.ObjFunction
	fnType   functionType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int

	classes *classCompiler

	line int
}

// classCompiler tracks the class currently being compiled, chained through
// nested class declarations, so `super` resolution knows whether an
// enclosing class has a superclass.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// New creates a compiler for top-level script code.
func New() *Compiler {
	c := &Compiler{fnType: funcTypeScript}
	c.function = &vm.ObjFunction{Chunk: &bytecode.Chunk{}}
	c.locals = append(c.locals, local{name: "", depth: 0})
	return c
}

func newFunctionCompiler(enclosing *Compiler, name string, fnType functionType) *Compiler {
	c := &Compiler{
		enclosing: enclosing,
		fnType:    fnType,
		classes:   enclosing.classes,
	}
	c.function = &vm.ObjFunction{Name: &vm.ObjString{Chars: name}, Chunk: &bytecode.Chunk{}}
	// Slot 0 holds the receiver in methods/initializers, where it is named
	// "this" so `this` resolves to it through the locals table; in plain
	// functions it holds the callee itself, is unnamed, and is never
	// resolved by name, but the slot must still exist.
	recv := ""
	if fnType == funcTypeMethod || fnType == funcTypeInitializer {
		recv = "this"
	}
	c.locals = append(c.locals, local{name: recv, depth: 0})
	return c
}

// Compile compiles a full program into the top-level script function.
func Compile(program *ast.Program) (fn *vm.ObjFunction, err error) {
	c := New()
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(compileError); ok {
				err = fmt.Errorf("%s", string(ce))
				return
			}
			panic(r)
		}
	}()
	for _, stmt := range program.Statements {
		c.compileStatement(stmt)
	}
	return c.finish(), nil
}

// compileError is a sentinel panic type used to unwind out of deeply
// nested statement/expression compilation on the first fatal error,
// mirroring clox's panicMode without threading an error return through
// every recursive call.
type compileError string

func (c *Compiler) fail(format string, args ...interface{}) {
	panic(compileError(fmt.Sprintf("line %d: %s", c.line, fmt.Sprintf(format, args...))))
}

func (c *Compiler) chunk() *bytecode.Chunk { return c.function.Chunk }

func (c *Compiler) emitByte(b byte)           { c.chunk().WriteByte(b, c.line) }
func (c *Compiler) emitOp(op bytecode.OpCode) { c.chunk().WriteOp(op, c.line) }
func (c *Compiler) emitOpByte(op bytecode.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitConstant(v bytecode.Value) {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.fail("too many constants in one chunk")
	}
	c.emitOpByte(bytecode.OpConstant, byte(idx))
}

// emitJump writes a jump opcode with a placeholder offset and returns the
// offset of the first placeholder byte, to be patched once the jump
// target is known.
func (c *Compiler) emitJump(op bytecode.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.fail("jump distance too large")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.fail("loop body too large")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *Compiler) emitReturn() {
	if c.fnType == funcTypeInitializer {
		c.emitOpByte(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) finish() *vm.ObjFunction {
	c.emitReturn()
	c.function.UpvalueCnt = len(c.upvalues)
	return c.function
}

func (c *Compiler) identifierConstant(name string) byte {
	idx := c.chunk().AddConstant(bytecode.ObjValue(&vm.ObjString{Chars: name}))
	if idx > 255 {
		c.fail("too many constants in one chunk")
	}
	return byte(idx)
}

// --- scope management ---

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].captured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) declareLocal(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].depth != -1 && c.locals[i].depth < c.scopeDepth {
			break
		}
		if c.locals[i].name == name {
			c.fail("variable '%s' already declared in this scope", name)
		}
	}
	c.locals = append(c.locals, local{name: name, depth: c.scopeDepth})
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i
		}
	}
	return -1
}

func (c *Compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}
	if slot := c.enclosing.resolveLocal(name); slot != -1 {
		c.enclosing.locals[slot].captured = true
		return c.addUpvalue(slot, true)
	}
	if slot := c.enclosing.resolveUpvalue(name); slot != -1 {
		return c.addUpvalue(slot, false)
	}
	return -1
}

func (c *Compiler) addUpvalue(index int, isLocal bool) int {
	for i, u := range c.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

// --- statements ---

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		c.line = s.Line
		c.compileExpression(s.Expr)
		c.emitOp(bytecode.OpPop)

	case *ast.PrintStmt:
		c.line = s.Line
		c.compileExpression(s.Expr)
		c.emitOp(bytecode.OpPrint)

	case *ast.VarStmt:
		c.line = s.Line
		c.compileVarStmt(s)

	case *ast.Block:
		c.line = s.Line
		c.beginScope()
		for _, st := range s.Statements {
			c.compileStatement(st)
		}
		c.endScope()

	case *ast.If:
		c.line = s.Line
		c.compileIf(s)

	case *ast.While:
		c.line = s.Line
		c.compileWhile(s)

	case *ast.FunStmt:
		c.line = s.Line
		c.declareLocal(s.Name)
		if c.scopeDepth > 0 {
			c.markInitialized()
		}
		c.compileFunction(s, funcTypeFunction)
		if c.scopeDepth == 0 {
			// A local function already owns the slot declared above.
			c.defineVariable(s.Name)
		}

	case *ast.ReturnStmt:
		c.line = s.Line
		c.compileReturn(s)

	case *ast.ClassStmt:
		c.line = s.Line
		c.compileClass(s)

	default:
		c.fail("unknown statement type %T", stmt)
	}
}

// markInitialized records that the most recently declared local is fully
// defined, so its own initializer (e.g. a recursive function literal) can
// refer to it without tripping the "already declared" shadow check.
func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) compileVarStmt(s *ast.VarStmt) {
	if s.Init != nil {
		c.compileExpression(s.Init)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.defineVariable(s.Name)
}

// defineVariable declares+defines a name: for a local scope it just
// reserves the already-pushed value's stack slot; at the top level it
// emits OP_DEFINE_GLOBAL.
func (c *Compiler) defineVariable(name string) {
	if c.scopeDepth > 0 {
		c.declareLocal(name)
		c.markInitialized()
		return
	}
	idx := c.identifierConstant(name)
	c.emitOpByte(bytecode.OpDefineGlobal, idx)
}

func (c *Compiler) compileIf(s *ast.If) {
	c.compileExpression(s.Condition)
	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.compileStatement(s.Then)
	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)
	if s.Else != nil {
		c.compileStatement(s.Else)
	}
	c.patchJump(elseJump)
}

func (c *Compiler) compileWhile(s *ast.While) {
	loopStart := len(c.chunk().Code)
	c.compileExpression(s.Condition)
	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.compileStatement(s.Body)
	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) compileReturn(s *ast.ReturnStmt) {
	if c.fnType == funcTypeScript {
		c.fail("cannot return from top-level code")
	}
	if s.Value == nil {
		c.emitReturn()
		return
	}
	if c.fnType == funcTypeInitializer {
		c.fail("cannot return a value from an initializer")
	}
	c.compileExpression(s.Value)
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) compileFunction(s *ast.FunStmt, fnType functionType) {
	fc := newFunctionCompiler(c, s.Name, fnType)
	fc.beginScope()
	for _, p := range s.Params {
		fc.function.Arity++
		fc.declareLocal(p)
		fc.markInitialized()
	}
	for _, st := range s.Body {
		fc.compileStatement(st)
	}
	fn := fc.finish()

	idx := c.chunk().AddConstant(bytecode.ObjValue(fn))
	c.emitOpByte(bytecode.OpClosure, byte(idx))
	for _, u := range fc.upvalues {
		if u.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(byte(u.index))
	}
}

func (c *Compiler) compileClass(s *ast.ClassStmt) {
	nameConst := c.identifierConstant(s.Name)
	c.declareLocal(s.Name)
	c.emitOpByte(bytecode.OpClass, nameConst)
	c.defineVariable(s.Name)

	cc := &classCompiler{enclosing: c.classes}
	c.classes = cc

	if s.Superclass != "" {
		if s.Superclass == s.Name {
			c.fail("a class cannot inherit from itself")
		}
		c.compileNamedVariableGet(s.Superclass)

		c.beginScope()
		c.declareLocal("super")
		c.markInitialized()

		c.compileNamedVariableGet(s.Name)
		c.emitOp(bytecode.OpInherit)
		cc.hasSuperclass = true
	}

	c.compileNamedVariableGet(s.Name)
	for _, m := range s.Methods {
		c.compileMethod(m)
	}
	c.emitOp(bytecode.OpPop) // the class reference pushed just above

	if cc.hasSuperclass {
		c.endScope()
	}
	c.classes = cc.enclosing
}

func (c *Compiler) compileMethod(m *ast.FunStmt) {
	nameConst := c.identifierConstant(m.Name)
	fnType := funcTypeMethod
	if m.Name == "init" {
		fnType = funcTypeInitializer
	}
	c.compileFunction(m, fnType)
	c.emitOpByte(bytecode.OpMethod, nameConst)
}

// --- expressions ---

func (c *Compiler) compileExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.line = e.Line
		c.emitConstant(bytecode.NumberValue(e.Value))

	case *ast.StringLiteral:
		c.line = e.Line
		c.emitConstant(bytecode.ObjValue(&vm.ObjString{Chars: e.Value}))

	case *ast.BoolLiteral:
		c.line = e.Line
		if e.Value {
			c.emitOp(bytecode.OpTrue)
		} else {
			c.emitOp(bytecode.OpFalse)
		}

	case *ast.NilLiteral:
		c.line = e.Line
		c.emitOp(bytecode.OpNil)

	case *ast.Identifier:
		c.line = e.Line
		c.compileNamedVariableGet(e.Name)

	case *ast.Assign:
		c.line = e.Line
		c.compileExpression(e.Value)
		c.compileNamedVariableSet(e.Name)

	case *ast.Binary:
		c.line = e.Line
		c.compileBinary(e)

	case *ast.Logical:
		c.line = e.Line
		c.compileLogical(e)

	case *ast.Unary:
		c.line = e.Line
		c.compileExpression(e.Operand)
		switch e.Operator {
		case "-":
			c.emitOp(bytecode.OpNegate)
		case "!":
			c.emitOp(bytecode.OpNot)
		default:
			c.fail("unknown unary operator %q", e.Operator)
		}

	case *ast.Call:
		c.line = e.Line
		c.compileCall(e)

	case *ast.Get:
		c.line = e.Line
		c.compileExpression(e.Object)
		idx := c.identifierConstant(e.Name)
		c.emitOpByte(bytecode.OpGetProperty, idx)

	case *ast.Set:
		c.line = e.Line
		c.compileExpression(e.Object)
		c.compileExpression(e.Value)
		idx := c.identifierConstant(e.Name)
		c.emitOpByte(bytecode.OpSetProperty, idx)

	case *ast.This:
		c.line = e.Line
		if c.classes == nil {
			c.fail("cannot use 'this' outside of a method")
		}
		c.compileNamedVariableGet("this")

	case *ast.Super:
		c.line = e.Line
		c.compileSuper(e)

	case *ast.ListLiteral:
		c.line = e.Line
		if len(e.Elements) > 255 {
			c.fail("too many elements in list literal")
		}
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emitOpByte(bytecode.OpBuildList, byte(len(e.Elements)))

	case *ast.Index:
		c.line = e.Line
		c.compileExpression(e.Object)
		c.compileExpression(e.Index)
		c.emitOp(bytecode.OpIndexSubscr)

	case *ast.IndexSet:
		c.line = e.Line
		c.compileExpression(e.Object)
		c.compileExpression(e.Index)
		c.compileExpression(e.Value)
		c.emitOp(bytecode.OpStoreSubscr)

	default:
		c.fail("unknown expression type %T", expr)
	}
}

func (c *Compiler) compileNamedVariableGet(name string) {
	if slot := c.resolveLocal(name); slot != -1 {
		c.emitOpByte(bytecode.OpGetLocal, byte(slot))
		return
	}
	if slot := c.resolveUpvalue(name); slot != -1 {
		c.emitOpByte(bytecode.OpGetUpvalue, byte(slot))
		return
	}
	idx := c.identifierConstant(name)
	c.emitOpByte(bytecode.OpGetGlobal, idx)
}

func (c *Compiler) compileNamedVariableSet(name string) {
	if slot := c.resolveLocal(name); slot != -1 {
		c.emitOpByte(bytecode.OpSetLocal, byte(slot))
		return
	}
	if slot := c.resolveUpvalue(name); slot != -1 {
		c.emitOpByte(bytecode.OpSetUpvalue, byte(slot))
		return
	}
	idx := c.identifierConstant(name)
	c.emitOpByte(bytecode.OpSetGlobal, idx)
}

func (c *Compiler) compileBinary(e *ast.Binary) {
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	switch e.Operator {
	case "+":
		c.emitOp(bytecode.OpAdd)
	case "-":
		c.emitOp(bytecode.OpSubtract)
	case "*":
		c.emitOp(bytecode.OpMultiply)
	case "/":
		c.emitOp(bytecode.OpDivide)
	case "==":
		c.emitOp(bytecode.OpEqual)
	case "!=":
		c.emitOp(bytecode.OpEqual)
		c.emitOp(bytecode.OpNot)
	case "<":
		c.emitOp(bytecode.OpLess)
	case "<=":
		c.emitOp(bytecode.OpGreater)
		c.emitOp(bytecode.OpNot)
	case ">":
		c.emitOp(bytecode.OpGreater)
	case ">=":
		c.emitOp(bytecode.OpLess)
		c.emitOp(bytecode.OpNot)
	default:
		c.fail("unknown binary operator %q", e.Operator)
	}
}

// compileLogical short-circuits `and`/`or` with jumps rather than emitting
// an opcode, per the distinction the AST's Logical type documents.
func (c *Compiler) compileLogical(e *ast.Logical) {
	c.compileExpression(e.Left)
	switch e.Operator {
	case "and":
		endJump := c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
		c.compileExpression(e.Right)
		c.patchJump(endJump)
	case "or":
		elseJump := c.emitJump(bytecode.OpJumpIfFalse)
		endJump := c.emitJump(bytecode.OpJump)
		c.patchJump(elseJump)
		c.emitOp(bytecode.OpPop)
		c.compileExpression(e.Right)
		c.patchJump(endJump)
	default:
		c.fail("unknown logical operator %q", e.Operator)
	}
}

func (c *Compiler) compileCall(e *ast.Call) {
	if len(e.Args) > 255 {
		c.fail("too many arguments in call")
	}

	// A bare `obj.name(args)` or `super.name(args)` compiles to the faster
	// OP_INVOKE/OP_SUPER_INVOKE path instead of GET_PROPERTY followed by
	// OP_CALL, per spec §4.6.
	if get, ok := e.Callee.(*ast.Get); ok {
		c.compileExpression(get.Object)
		for _, a := range e.Args {
			c.compileExpression(a)
		}
		idx := c.identifierConstant(get.Name)
		c.emitOp(bytecode.OpInvoke)
		c.emitByte(idx)
		c.emitByte(byte(len(e.Args)))
		return
	}
	if sup, ok := e.Callee.(*ast.Super); ok {
		if c.classes == nil || !c.classes.hasSuperclass {
			c.fail("cannot use 'super' outside of a subclass method")
		}
		c.compileNamedVariableGet("this")
		for _, a := range e.Args {
			c.compileExpression(a)
		}
		c.compileNamedVariableGet("super")
		idx := c.identifierConstant(sup.Name)
		c.emitOp(bytecode.OpSuperInvoke)
		c.emitByte(idx)
		c.emitByte(byte(len(e.Args)))
		return
	}

	c.compileExpression(e.Callee)
	for _, a := range e.Args {
		c.compileExpression(a)
	}
	c.emitOpByte(bytecode.OpCall, byte(len(e.Args)))
}

func (c *Compiler) compileSuper(e *ast.Super) {
	if c.classes == nil {
		c.fail("cannot use 'super' outside of a class")
	}
	if !c.classes.hasSuperclass {
		c.fail("cannot use 'super' in a class with no superclass")
	}
	c.compileNamedVariableGet("this")
	idx := c.identifierConstant(e.Name)
	c.compileNamedVariableGet("super")
	c.emitOpByte(bytecode.OpGetSuper, idx)
}
