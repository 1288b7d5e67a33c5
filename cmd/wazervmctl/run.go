package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wazervm/wazervm/backend"
	"github.com/wazervm/wazervm/backend/mock"
	"github.com/wazervm/wazervm/instance"
)

func newRunCmd() *cobra.Command {
	var argsRaw []string

	cmd := &cobra.Command{
		Use:   "run <module.wasm> <export>",
		Short: "compile a module and invoke one export against a mock backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args[0], args[1], argsRaw)
		},
	}

	cmd.Flags().StringSliceVar(&argsRaw, "arg", nil, "uint32 argument to pass to the export, repeatable")
	return cmd
}

func runExport(path, export string, argsRaw []string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading module: %w", err)
	}

	callArgs := make([]uint64, len(argsRaw))
	for i, raw := range argsRaw {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("parsing --arg %q: %w", raw, err)
		}
		callArgs[i] = v
	}

	logger := zap.NewNop()
	if viper.GetBool("print_debug") {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
	}
	defer logger.Sync() //nolint:errcheck

	b := backend.Backend{Api: mock.NewApi(), Storage: mock.NewStorage(), Querier: mock.NewQuerier()}
	opts := instance.Options{
		GasLimit:          viper.GetUint64("gas_limit"),
		MemoryLimitPages:  uint32(viper.GetUint("memory_limit_pages")),
		PrintDebug:        viper.GetBool("print_debug"),
		Logger:            logger,
		SupportedFeatures: viper.GetStringSlice("capabilities"),
	}

	inst, err := instance.FromCode(context.Background(), code, b, opts)
	if err != nil {
		return fmt.Errorf("instantiating module: %w", err)
	}
	defer inst.Close()

	fmt.Printf("required capabilities: %v\n", capabilityNames(inst.RequiredCapabilities()))

	results, err := inst.CallExport(export, opts.GasLimit, callArgs...)
	report := inst.CreateGasReport()
	fmt.Printf("gas: limit=%d remaining=%d used_internally=%d used_externally=%d\n",
		report.Limit, report.Remaining, report.UsedInternally, report.UsedExternally)
	if err != nil {
		return fmt.Errorf("calling %q: %w", export, err)
	}

	if len(results) == 1 {
		ptr := uint32(results[0])
		if payload, rerr := inst.ReadMemory(ptr, 1<<20); rerr == nil {
			fmt.Printf("result region %d: %s\n", ptr, hex.EncodeToString(payload))
		} else {
			fmt.Printf("result: %d\n", results[0])
		}
	}
	return nil
}

func capabilityNames(caps map[string]struct{}) []string {
	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, name)
	}
	return names
}
