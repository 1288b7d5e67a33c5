// Command wazervmctl compiles a guest Wasm module and invokes one of
// its exports against an in-memory mock backend, printing the gas
// report and any returned Region payload.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wazervmctl",
		Short: "wazervmctl - compile and run a CosmWasm-style guest module",
		Long: `wazervmctl loads a compiled Wasm guest module, wires it against an
in-memory mock backend, and invokes one of its exports, printing the
resulting gas report.`,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./wazervmctl.yaml)")
	root.PersistentFlags().Uint64("gas-limit", 10_000_000, "gas limit for the call")
	root.PersistentFlags().Uint32("memory-limit-pages", 0, "cap on guest linear memory growth, in 64 KiB pages (0 = no explicit cap)")
	root.PersistentFlags().Bool("print-debug", false, "log guest debug() calls")
	root.PersistentFlags().StringSlice("capabilities", nil, "chain capabilities to advertise (e.g. iterator,cosmwasm_1_4)")

	_ = viper.BindPFlag("gas_limit", root.PersistentFlags().Lookup("gas-limit"))
	_ = viper.BindPFlag("memory_limit_pages", root.PersistentFlags().Lookup("memory-limit-pages"))
	_ = viper.BindPFlag("print_debug", root.PersistentFlags().Lookup("print-debug"))
	_ = viper.BindPFlag("capabilities", root.PersistentFlags().Lookup("capabilities"))
	viper.SetEnvPrefix("WAZERVM")
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	return root
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("wazervmctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	// Config is optional: flags and environment variables are enough to
	// run without one.
	_ = viper.ReadInConfig()
}
