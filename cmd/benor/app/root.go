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
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/log"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "benor",
	Short: "Ben-Or binary consensus nodes",
	Long: `benor runs nodes of the randomized Ben-Or binary consensus protocol,
either one node per process talking over http or zeromq, or a whole
cluster in a single process for experiments.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			log.OpenDebug()
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// readConfig loads the config file into a fresh viper instance.
func readConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// parseValues parses initial values written as "0110" or "0,1,1,0".
func parseValues(s string) ([]consensus.Value, error) {
	s = strings.ReplaceAll(s, ",", "")
	values := make([]consensus.Value, 0, len(s))
	for _, c := range s {
		v, err := consensus.ParseValue(string(c))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// parseFaulty indexes the faulty node ids.
func parseFaulty(ids []int) map[int]bool {
	faulty := make(map[int]bool, len(ids))
	for _, id := range ids {
		faulty[id] = true
	}
	return faulty
}
