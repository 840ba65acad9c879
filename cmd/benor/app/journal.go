package app

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ultiledger/go-benor/db"
	"github.com/ultiledger/go-benor/journal"
	"github.com/ultiledger/go-benor/log"
)

// openJournal opens the journal configured by the db flags, it
// returns a nil journal when no db path is set.
func openJournal() (*journal.Journal, func(), error) {
	backend, path := viper.GetString("db_backend"), viper.GetString("db_path")
	if path == "" && backend != "memdb" {
		return nil, func() {}, nil
	}
	database, err := db.Open(backend, path)
	if err != nil {
		return nil, nil, err
	}
	j, err := journal.New(database, log.Named("journal"))
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return j, func() { database.Close() }, nil
}

func addJournalFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-backend", "boltdb", "journal database backend, one of boltdb, leveldb or memdb")
	cmd.Flags().String("db-path", "", "journal database path")
	cmd.Flags().String("run", "default", "run name of the recorded decisions")
}

func bindJournalFlags(cmd *cobra.Command) {
	viper.BindPFlag("db_backend", cmd.Flags().Lookup("db-backend"))
	viper.BindPFlag("db_path", cmd.Flags().Lookup("db-path"))
	viper.BindPFlag("run", cmd.Flags().Lookup("run"))
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded decisions",
}

var journalListCmd = &cobra.Command{
	Use:   "list [run]",
	Short: "List the recorded decisions",
	Args:  cobra.MaximumNArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindJournalFlags(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		j, closeDB := mustOpenJournal()
		defer closeDB()

		run := ""
		if len(args) == 1 {
			run = args[0]
		}
		ds, err := j.List(run)
		if err != nil {
			log.Fatalf("list decisions failed: %v", err)
		}
		if err := renderDecisions(ds); err != nil {
			log.Fatal(err)
		}
	},
}

var journalExportCmd = &cobra.Command{
	Use:   "export [run]",
	Short: "Export the recorded decisions as an Arrow IPC stream",
	Args:  cobra.MaximumNArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindJournalFlags(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		j, closeDB := mustOpenJournal()
		defer closeDB()

		run := ""
		if len(args) == 1 {
			run = args[0]
		}
		ds, err := j.List(run)
		if err != nil {
			log.Fatalf("list decisions failed: %v", err)
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				log.Fatal(err)
			}
			defer f.Close()
			out = f
		}
		if err := journal.ExportArrow(out, ds); err != nil {
			log.Fatalf("export decisions failed: %v", err)
		}
		log.Infow("decisions exported", "count", len(ds))
	},
}

func mustOpenJournal() (*journal.Journal, func()) {
	j, closeDB, err := openJournal()
	if err != nil {
		log.Fatalf("open journal failed: %v", err)
	}
	if j == nil {
		log.Fatal("db path is empty")
	}
	return j, closeDB
}

func init() {
	for _, cmd := range []*cobra.Command{journalListCmd, journalExportCmd} {
		addJournalFlags(cmd)
		journalCmd.AddCommand(cmd)
	}
	journalExportCmd.Flags().StringP("out", "o", "", "output file, stdout when empty")
	rootCmd.AddCommand(journalCmd)
}
