package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"scvm/hostconsole"
	"scvm/vm"
)

// replCmd is a hand-rolled step/continue debugger reading commands from
// stdin, the same shape GVM's own debug mode takes (a bufio.Reader command
// loop over a running VM) rather than anything Cobra-flag-driven — Cobra
// only gets us to the command, the loop inside it is plain stdlib.
func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl <executable>",
		Short: "Step or run an executable under an interactive debugger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := hostconsole.NewTerminalReader()
			if err := reader.Start(); err != nil {
				return err
			}
			defer reader.Stop()

			prog, err := loadProgram(args[0], reader)
			if err != nil {
				return err
			}
			proc := scvm.NewProcess(prog)
			return runRepl(proc)
		},
	}
}

func runRepl(proc *scvm.Process) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("scvm repl: step, continue, regs, state, quit (Ctrl-C pauses a running continue)")
	for {
		fmt.Print("(scvm) ")
		if !scanner.Scan() {
			return nil
		}
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "", "#":
			continue
		case "q", "quit":
			return nil
		case "s", "step":
			replStep(ctx, proc)
		case "c", "continue":
			replContinue(ctx, proc, interrupt)
		case "r", "regs":
			replRegs(proc)
		case "state":
			fmt.Printf("state=%v ip=%d frames=%d\n", proc.State(), proc.IP(), proc.FrameDepth())
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
		if proc.State() == scvm.StateFinished || proc.State() == scvm.StateCrashed {
			printTerminalState(proc)
			return nil
		}
	}
}

func replStep(ctx context.Context, proc *scvm.Process) {
	if proc.State() == scvm.StateTrapped {
		if err := proc.Resume(); err != nil {
			fmt.Println(err)
			return
		}
	}
	outcome, err := proc.Step(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("stepped to ip=%d (%v)\n", proc.IP(), outcome)
}

// replContinue runs to completion or until Ctrl-C requests a pause: Run
// executes on its own goroutine while this one waits, and a Ctrl-C received
// here calls Process.Pause across that goroutine boundary.
func replContinue(ctx context.Context, proc *scvm.Process, interrupt chan os.Signal) {
	if proc.State() == scvm.StateTrapped {
		if err := proc.Resume(); err != nil {
			fmt.Println(err)
			return
		}
	}

	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			fmt.Println(err)
		}
	case <-interrupt:
		proc.Pause()
		if err := <-done; err != nil {
			fmt.Println(err)
		}
		fmt.Println("paused")
	}
}

func replRegs(proc *scvm.Process) {
	n := proc.RegisterCount()
	for i := 0; i < n; i++ {
		v, ok := proc.Register(scvm.Register(i))
		if !ok {
			continue
		}
		fmt.Printf("  r%d = %d (0x%x)\n", i, v.AsI64(), v.AsU64())
	}
}

func printTerminalState(proc *scvm.Process) {
	switch proc.State() {
	case scvm.StateFinished:
		fmt.Printf("finished: exit value=%d\n", proc.ExitValue().AsI64())
	case scvm.StateCrashed:
		fmt.Printf("crashed: %v\n", proc.LastFault())
	}
}
