package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/HWyn2020/flash-arbitrage-ethereum/utils"
)

var (
	cfgFile string
	debug   bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "arbbot",
	Short: "A CLI bot for atomic cross-venue flash-loan arbitrage",
	Long: `A CLI bot that scans AMM venues for cross-venue price discrepancies
and executes two-hop round trips funded by flash loans, with every attempt
validated against an atomic all-or-nothing execution unit.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.arbbot.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "arb-bot.log", "log file sink (empty for stdout only)")
}

func initConfig() {
	utils.InitLogger(debug, logFile)
}
