package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/kristofer/loxvm/pkg/bytecode"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/parser"
	"github.com/kristofer/loxvm/pkg/vm"
)

func loadConfig(path string) vm.Config {
	if path == "" {
		return vm.DefaultConfig()
	}
	cfg, err := vm.LoadConfig(path)
	if err != nil {
		errColor.Fprintf(stderr, "failed to load config %s: %v\n", path, err)
		os.Exit(1)
	}
	return cfg
}

func compileSource(source string) (*vm.ObjFunction, error) {
	prog, err := parser.New(source).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	fn, err := compiler.Compile(prog)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	return fn, nil
}

func runFile(path string, configPath string, debug bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fn, err := compileSource(string(data))
	if err != nil {
		errColor.Fprintln(stderr, err)
		os.Exit(65)
	}

	machine := vm.New(loadConfig(configPath))
	machine.Stdout = stdout
	machine.Stderr = stderr
	if debug {
		machine.Debugger = vm.NewDebugger(os.Stdin, stdout)
		machine.Debugger.Enable()
	}

	result := machine.Interpret(fn)
	if result == vm.InterpretRuntimeError {
		os.Exit(70)
	}
	if result == vm.InterpretCompileError {
		os.Exit(65)
	}
	return nil
}

func disassembleSource(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fn, err := compileSource(string(data))
	if err != nil {
		errColor.Fprintln(stderr, err)
		os.Exit(65)
	}
	okColor.Fprintf(stdout, "== %s ==\n", path)
	printDisassembly(fn, path)
	return nil
}

// printDisassembly walks the top-level function and every nested function
// constant, the same recursive walk intern.go's bridge performs, so
// compiled closures show up in the dump too.
func printDisassembly(fn *vm.ObjFunction, name string) {
	fmt.Fprint(stdout, bytecode.Disassemble(fn.Chunk, name))
	for _, c := range fn.Chunk.Constants {
		if nested, ok := c.AsObj().(*vm.ObjFunction); ok {
			label := name + " -> " + nested.String()
			printDisassembly(nested, label)
		}
	}
}

func runREPL(configPath string) error {
	fmt.Fprintf(stdout, "loxvm %s\n", version)
	fmt.Fprintln(stdout, "Type an expression or statement, Ctrl-D to exit.")

	machine := vm.New(loadConfig(configPath))
	machine.Stdout = stdout
	machine.Stderr = stderr

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histFile := replHistoryPath()
	if f, err := os.Open(histFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	for {
		input, err := line.Prompt("loxvm> ")
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fn, cerr := compileSource(input)
		if cerr != nil {
			errColor.Fprintln(stderr, cerr)
			continue
		}
		machine.Interpret(fn)
	}

	if f, err := os.Create(histFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	fmt.Fprintln(stdout)
	return nil
}

func replHistoryPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".loxvm_history"
	}
	return dir + string(os.PathSeparator) + ".loxvm_history"
}
