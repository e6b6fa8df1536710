// cmd/docdb is the CLI entry-point built with Cobra.
//
// Usage:
//
//	docdb --data ./data set TYPE_abc1234 '{"name":"ok"}'
//	docdb --data ./data get TYPE_abc1234
//	docdb --data ./data begin
//	docdb --data ./data snapshot
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bobboyms/docdb/pkg/dbconfig"
	"github.com/bobboyms/docdb/pkg/dblog"
	"github.com/bobboyms/docdb/pkg/store"
)

var (
	dataDir     string
	maxMemoryMB float64
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:   "docdb",
		Short: "CLI for the embeddable encrypted document store",
	}

	root.PersistentFlags().StringVar(&dataDir, "data", "./data", "data directory")
	root.PersistentFlags().Float64Var(&maxMemoryMB, "max-memory-mb", 256, "hot tier memory budget in MB")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		setCmd(),
		getCmd(),
		deleteCmd(),
		renameCmd(),
		saddCmd(),
		sremCmd(),
		smembersCmd(),
		beginCmd(),
		commitCmd(),
		abortCmd(),
		popCmd(),
		snapshotCmd(),
		statsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect() (*store.Adapter, error) {
	dblog.Init(dblog.Config{Level: dblog.Level(logLevel)})

	cfg := dbconfig.Default()
	cfg.DataDir = dataDir
	cfg.MaxMemoryMB = maxMemoryMB

	return store.Connect(cfg)
}

func withAdapter(fn func(a *store.Adapter) error) error {
	a, err := connect()
	if err != nil {
		return err
	}
	defer a.Disconnect()
	return fn(a)
}

func txnFlag(cmd *cobra.Command) *string {
	return cmd.Flags().String("txn", "", "run within an existing transaction")
}

func setCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				return a.Set(args[0], args[1], txnID)
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				value, found, err := a.Get(args[0], txnID)
				if err != nil {
					return err
				}
				if !found {
					fmt.Printf("%s: not found\n", args[0])
					return nil
				}
				fmt.Println(value)
				return nil
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				return a.Delete(args[0], txnID)
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func renameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <oldKey> <newKey>",
		Short: "Rename a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				return a.Rename(args[0], args[1], txnID)
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func saddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sadd <set> <member>",
		Short: "Add a member to a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				return a.SAdd(args[0], args[1], txnID)
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func sremCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srem <set> <member>",
		Short: "Remove a member from a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				return a.SRem(args[0], args[1], txnID)
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func smembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smembers <set>",
		Short: "List a collection's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, _ := cmd.Flags().GetString("txn")
			return withAdapter(func(a *store.Adapter) error {
				members, err := a.SMembers(args[0], txnID)
				if err != nil {
					return err
				}
				for _, m := range members {
					fmt.Println(m)
				}
				return nil
			})
		},
	}
	txnFlag(cmd)
	return cmd
}

func beginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "begin",
		Short: "Start a transaction and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *store.Adapter) error {
				txnID, err := a.Begin()
				if err != nil {
					return err
				}
				fmt.Println(txnID)
				return nil
			})
		},
	}
}

func commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <txnId>",
		Short: "Commit a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *store.Adapter) error {
				return a.Commit(args[0])
			})
		},
	}
}

func abortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <txnId>",
		Short: "Abort a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *store.Adapter) error {
				return a.Abort(args[0])
			})
		},
	}
}

func popCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pop <txnId>",
		Short: "Undo the last operation in a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *store.Adapter) error {
				ok, err := a.Pop(args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("nothing to undo")
					return nil
				}
				fmt.Println("undone")
				return nil
			})
		},
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Trigger an out-of-band snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *store.Adapter) error {
				return a.CreateSnapshot()
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show whether a snapshot file exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *store.Adapter) error {
				fmt.Printf("%+v\n", a.SnapshotStats())
				return nil
			})
		},
	}
}
