// Command scvm loads and runs binary executables in the container format
// vm/container.go implements, against the reference hostconsole
// environment.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scvm/hostconsole"
	"scvm/vm"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scvm",
		Short: "Run and inspect SecreC-assembly style bytecode executables",
	}
	root.AddCommand(runCmd())
	root.AddCommand(disasmCmd())
	root.AddCommand(replCmd())
	return root
}

func loadProgram(path string, reader *hostconsole.TerminalReader) (*scvm.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	units, err := scvm.ReadContainer(f)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}

	host := hostconsole.NewHost(os.Stdout, reader)
	prog, err := scvm.NewProgram(units, 0, host, host, host)
	if err != nil {
		return nil, fmt.Errorf("prepare program: %w", err)
	}
	return prog, nil
}

func runCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "run <executable>",
		Short: "Run an executable to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader *hostconsole.TerminalReader
			if interactive {
				reader = hostconsole.NewTerminalReader()
				if err := reader.Start(); err != nil {
					return err
				}
				defer reader.Stop()
			}

			prog, err := loadProgram(args[0], reader)
			if err != nil {
				return err
			}

			proc := scvm.NewProcess(prog)
			if err := proc.Run(context.Background()); err != nil {
				return err
			}

			switch proc.State() {
			case scvm.StateFinished:
				fmt.Printf("finished: exit value=%d\n", proc.ExitValue().AsI64())
			case scvm.StateCrashed:
				fmt.Printf("crashed: %v\n", proc.LastFault())
				os.Exit(1)
			case scvm.StateTrapped:
				fmt.Printf("trapped at ip=%d\n", proc.LastFault().IP)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "attach a raw-terminal console.read source")
	return cmd
}

func disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <executable>",
		Short: "List the active linking unit's decoded instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(args[0], nil)
			if err != nil {
				return err
			}
			size := prog.Units[prog.ActiveUnit].Code[0].Size()
			for off := 0; off < size; off++ {
				d, ok := prog.Instruction(0, off)
				if !ok {
					continue
				}
				fmt.Printf("%6d: opcode=%d args=%v\n", off, d.Opcode, d.Args)
			}
			return nil
		},
	}
}
