// Command loxvm is the front door to the bytecode virtual machine: a
// cobra-based CLI with run/repl/disassemble/compile subcommands, built
// the way the teacher's hand-rolled os.Args switch never was.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	errColor = color.New(color.FgRed, color.Bold)
	okColor  = color.New(color.FgGreen)
	stdout   = colorable.NewColorableStdout()
	stderr   = colorable.NewColorableStderr()
)

func init() {
	// go-isatty decides whether color escapes degrade to plain text; the
	// color package's NoColor default already checks this for os.Stdout,
	// but we route everything through go-colorable for Windows ANSI
	// translation, so set it explicitly from the same detection.
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func main() {
	root := &cobra.Command{
		Use:     "loxvm",
		Short:   "A bytecode virtual machine for a small dynamic scripting language",
		Version: version,
	}

	root.AddCommand(runCmd())
	root.AddCommand(replCmd())
	root.AddCommand(disassembleCmd())
	root.AddCommand(compileCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configPath string
	var debug bool
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and run a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0], configPath, debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML VM configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "attach the interactive debugger before running")
	return cmd
}

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a source file and print its disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disassembleSource(args[0])
		},
	}
	return cmd
}

func disassembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "disassemble <file>",
		Aliases: []string{"disasm"},
		Short:   "Compile a source file and print its bytecode disassembly",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disassembleSource(args[0])
		},
	}
	return cmd
}

func replCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive read-eval-print loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML VM configuration file")
	return cmd
}
