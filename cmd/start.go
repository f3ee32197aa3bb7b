package cmd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/cmd/bot"
	"github.com/HWyn2020/flash-arbitrage-ethereum/config"
	"github.com/HWyn2020/flash-arbitrage-ethereum/utils"
	"github.com/HWyn2020/flash-arbitrage-ethereum/utils/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Debug("no .env file loaded", zap.Error(err))
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg.Logger = log

		ctx := cmd.Context()

		var relay *bot.RelayDeps
		if cfg.Channel == "private" {
			relay, err = bot.ChainRelayDeps(ctx, cfg, log)
			if err != nil {
				return err
			}
		}

		reg := prometheus.NewRegistry()
		env, err := bot.BuildLocal(ctx, cfg, reg, relay, log)
		if err != nil {
			return err
		}

		if cfg.PrometheusEnabled {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler(reg))
				if err := http.ListenAndServe(cfg.PrometheusEndpoint, mux); err != nil {
					log.Error("metrics endpoint failed", zap.Error(err))
				}
			}()
			log.Info("metrics endpoint listening", zap.String("addr", cfg.PrometheusEndpoint))
		}

		env.Bot.Start(ctx)
		<-ctx.Done()
		env.Bot.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
