package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/wazervm/wazervm/capabilities"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "list a module's exports and required capabilities without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectModule(args[0])
		},
	}
}

func inspectModule(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading module: %w", err)
	}

	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx) //nolint:errcheck

	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		return fmt.Errorf("compiling module: %w", err)
	}
	defer compiled.Close(ctx) //nolint:errcheck

	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("exports:")
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}

	caps := capabilities.FromExportNames(names)
	capNames := make([]string, 0, len(caps))
	for name := range caps {
		capNames = append(capNames, name)
	}
	sort.Strings(capNames)
	fmt.Printf("required capabilities: %v\n", capNames)
	return nil
}
