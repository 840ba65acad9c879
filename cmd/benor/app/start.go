// Copyright 2026 The go-benor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/node"
)

var cfgFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a node with config",
	Long: `Start a single consensus node with the specified configuration. The
node serves its control endpoints and waits for /start, which succeeds
once every peer answers on /status.`,
	Run: func(cmd *cobra.Command, args []string) {
		// read in config file
		if cfgFile == "" {
			log.Fatal(errors.New("config file not provided"))
		}
		v, err := readConfig(cfgFile)
		if err != nil {
			log.Fatal(err)
		}
		for _, key := range []string{"node_id", "initial_value", "faulty", "transport"} {
			if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
				v.BindPFlag(key, f)
			}
		}
		// init node config from viper
		c, err := node.NewConfig(v)
		if err != nil {
			log.Fatal(err)
		}
		n, err := node.New(c)
		if err != nil {
			log.Fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := n.Serve(ctx); err != nil {
			log.Fatalf("serve node %d failed: %v", c.NodeID, err)
		}
	},
}

func init() {
	startCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file of the node")
	startCmd.MarkFlagRequired("config")
	startCmd.Flags().Int("node_id", 0, "override the node id")
	startCmd.Flags().String("initial_value", "", "override the initial value, 0 or 1")
	startCmd.Flags().Bool("faulty", false, "run as a silent faulty node")
	startCmd.Flags().String("transport", "", "packet transport, http or zmq")
	rootCmd.AddCommand(startCmd)
}
