package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ultiledger/go-benor/cluster"
	"github.com/ultiledger/go-benor/log"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a cluster of http nodes",
	Long: `Launch every node of a cluster in this process, each one behind its
own http listener on base port + node id. The consensus is started
through /start once all nodes listen.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindClusterFlags(cmd)
		viper.BindPFlag("host", cmd.Flags().Lookup("host"))
		viper.BindPFlag("base_port", cmd.Flags().Lookup("base-port"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		p := readClusterParams(cmd)
		j, closeDB, err := openJournal()
		if err != nil {
			log.Fatalf("open journal failed: %v", err)
		}
		defer closeDB()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		states, err := cluster.Launch(ctx, cluster.LaunchConfig{
			F:        p.f,
			Initial:  p.initial,
			Faulty:   p.faulty,
			Host:     viper.GetString("host"),
			BasePort: viper.GetInt("base_port"),
			Run:      viper.GetString("run"),
			Coins:    p.coins,
			Journal:  j,
			OnListening: func(urls []string) {
				pterm.Info.Printfln("nodes listening on %v", urls)
			},
		})
		if err != nil {
			log.Warnf("cluster launch ended: %v", err)
		}
		if states == nil {
			return
		}
		if err := renderStates(states); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	addClusterFlags(launchCmd)
	launchCmd.Flags().String("host", "127.0.0.1", "listen host of the nodes")
	launchCmd.Flags().Int("base-port", 3000, "port of node 0")
	rootCmd.AddCommand(launchCmd)
}
