// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command crewgate inspects the .orchestration/ files a workspace
// accumulates: the agent trace ledger, the lessons store, and the
// declared intent catalog. All subcommands are read-only.
//
// Usage:
//
//	crewgate trace list --root /path/to/workspace
//	crewgate lessons list
//	crewgate lessons search stale snapshot
//	crewgate intents show
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crewgate/services/orchestration/intent"
	"github.com/AleutianAI/crewgate/services/orchestration/ledger"
	"github.com/AleutianAI/crewgate/services/orchestration/lessons"
)

var workspaceRoot string

func main() {
	root := &cobra.Command{
		Use:           "crewgate",
		Short:         "Inspect agent orchestration state for a workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&workspaceRoot, "root", ".", "workspace root directory")

	root.AddCommand(traceCmd(), lessonsCmd(), intentsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func traceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect the agent trace ledger",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all valid trace entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ledger.Read(workspaceRoot)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no trace entries")
				return nil
			}
			for _, e := range entries {
				for _, f := range e.Files {
					fmt.Printf("%s  %-16s  %-8s  %s\n",
						e.Timestamp, e.MutationClass, e.VCS.RevisionID[:min(8, len(e.VCS.RevisionID))], f.RelativePath)
				}
			}
			return nil
		},
	})
	return cmd
}

func lessonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "Inspect the shared lessons store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all recorded lessons",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := lessons.List(workspaceRoot)
			if err != nil {
				return err
			}
			printLessons(all)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "search <keyword>...",
		Short: "Search lessons by keyword, best matches first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := lessons.Search(workspaceRoot, args)
			if err != nil {
				return err
			}
			printLessons(hits)
			return nil
		},
	})
	return cmd
}

func printLessons(list []lessons.Lesson) {
	if len(list) == 0 {
		fmt.Println("no lessons")
		return
	}
	for _, l := range list {
		fmt.Printf("[%s] %s\n%s\n\n", l.Category, l.Timestamp, l.Body)
	}
}

func intentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "Inspect the declared intent catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show declared intents and their owned scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(
				workspaceRoot + "/" + intent.CatalogFile)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no intent catalog")
					return nil
				}
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})
	return cmd
}
