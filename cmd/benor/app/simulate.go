package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ultiledger/go-benor/cluster"
	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/log"
)

// addClusterFlags registers the flags shared by simulate and launch.
func addClusterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("values", "v", "", "initial values of the nodes, e.g. 0110")
	cmd.MarkFlagRequired("values")
	cmd.Flags().IntSlice("faulty", nil, "ids of the silent faulty nodes")
	cmd.Flags().IntP("faulty-nodes", "f", -1, "faulty budget, (n-1)/3 when negative")
	cmd.Flags().Int64("seed", 0, "seed of the node coins, crypto coins when not set")
	cmd.Flags().Duration("timeout", 30*time.Second, "give up after this duration")
	addJournalFlags(cmd)
}

func bindClusterFlags(cmd *cobra.Command) {
	viper.BindPFlag("values", cmd.Flags().Lookup("values"))
	viper.BindPFlag("faulty", cmd.Flags().Lookup("faulty"))
	viper.BindPFlag("faulty_nodes", cmd.Flags().Lookup("faulty-nodes"))
	viper.BindPFlag("seed", cmd.Flags().Lookup("seed"))
	viper.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
	bindJournalFlags(cmd)
}

type clusterParams struct {
	initial []consensus.Value
	faulty  map[int]bool
	f       int
	coins   func(id int) consensus.Coin
	timeout time.Duration
}

func readClusterParams(cmd *cobra.Command) clusterParams {
	initial, err := parseValues(viper.GetString("values"))
	if err != nil {
		log.Fatalf("parse initial values failed: %v", err)
	}
	p := clusterParams{
		initial: initial,
		faulty:  parseFaulty(viper.GetIntSlice("faulty")),
		f:       viper.GetInt("faulty_nodes"),
		timeout: viper.GetDuration("timeout"),
	}
	if p.f < 0 {
		p.f = (len(initial) - 1) / 3
	}
	if cmd.Flags().Changed("seed") {
		p.coins = cluster.SeededCoins(viper.GetInt64("seed"))
	}
	return p
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a cluster in memory",
	Long: `Run every node of a cluster in this process with packets passed in
memory, then print the final state of every node.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindClusterFlags(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		p := readClusterParams(cmd)
		j, closeDB, err := openJournal()
		if err != nil {
			log.Fatalf("open journal failed: %v", err)
		}
		defer closeDB()

		cfg := cluster.Config{
			F:       p.f,
			Initial: p.initial,
			Faulty:  p.faulty,
			Coins:   p.coins,
		}
		if j != nil {
			cfg.OnDecide = j.Hook(viper.GetString("run"))
		}
		c, err := cluster.New(cfg)
		if err != nil {
			log.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		states, err := c.Run(ctx)
		if err != nil {
			log.Warnf("cluster run ended: %v", err)
		}
		if err := renderStates(states); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	addClusterFlags(simulateCmd)
	rootCmd.AddCommand(simulateCmd)
}
