package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/output"
)

// NewStoreCmd creates debug/ops access to the shared KV store.
func NewStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and edit the shared key/value store",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newStoreGetCmd())
	cmd.AddCommand(newStoreSetCmd())
	cmd.AddCommand(newStoreListCmd())

	return cmd
}

func newStoreGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value (bumps access_count)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			raw, found, err := st.Retrieve(args[0])
			if err != nil {
				return err
			}
			if !found {
				return output.PrintSuccess(map[string]any{"key": args[0], "found": false})
			}
			return output.PrintSuccess(map[string]any{"key": args[0], "found": true, "value": raw})
		},
	}
}

func newStoreSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Store a JSON value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("value is not valid JSON")
			}
			if err := st.Put(args[0], json.RawMessage(args[1])); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]any{"key": args[0], "stored": true})
		},
	}
}

func newStoreListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List entries by key prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			entries, err := st.List(prefix)
			if err != nil {
				return err
			}
			keysOnly, _ := cmd.Flags().GetBool("keys")
			if keysOnly {
				keys := make([]string, 0, len(entries))
				for _, e := range entries {
					keys = append(keys, e.Key)
				}
				return output.PrintSuccess(map[string]any{"keys": keys, "count": len(keys)})
			}
			return output.PrintSuccess(map[string]any{"entries": entries, "count": len(entries)})
		},
	}
	cmd.Flags().Bool("keys", false, "List keys only")
	return cmd
}
