package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"plcaudit/internal/document"
	"plcaudit/internal/shard"
)

var shardsOut string

var shardsCmd = &cobra.Command{
	Use:   "shards [export.xml]",
	Short: "Show how an export would be sharded, without dispatching",
	Args:  cobra.ExactArgs(1),
	RunE:  runShards,
}

func init() {
	shardsCmd.Flags().StringVarP(&shardsOut, "export", "e", "", "write each shard as JSON into this directory")
}

func runShards(cmd *cobra.Command, args []string) error {
	doc, err := document.ParseFile(args[0])
	if err != nil {
		return err
	}

	sum := doc.Summarize()
	shards := shard.Build(doc, cfg.Sharding)
	fmt.Printf("%d lines, %d blocks, ~%d tokens, %d shards\n", sum.TotalLines, sum.TotalBlocks, sum.TokenEstimate, len(shards))
	for kind, n := range sum.CountsByKind {
		fmt.Printf("  %-24s %d\n", kind, n)
	}
	fmt.Println()

	for _, s := range shards {
		fmt.Printf("%-16s %-10s lines %5d-%-5d", s.ID, s.Kind, s.Range.Start, s.Range.End)
		fmt.Printf("  blocks=%-3d ctx=%-3d ext=%-3d tokens~%d",
			len(s.PrimaryBlocks), len(s.ContextBlocks), len(s.ExternalRefs), s.TokenEstimate)
		if s.OverlapLines > 0 {
			fmt.Printf("  overlap=%d", s.OverlapLines)
		}
		if s.Oversized {
			fmt.Printf("  OVERSIZED")
		}
		fmt.Println()
	}

	if shardsOut != "" {
		if err := shard.ExportJSON(shards, shardsOut); err != nil {
			return err
		}
		fmt.Printf("\nwrote shard JSON to %s\n", shardsOut)
	}
	return nil
}
