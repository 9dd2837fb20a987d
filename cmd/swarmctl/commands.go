// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/AleutianSwarm/cmd/swarmctl/config"
	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "swarmctl",
		Short: "A cli to inspect and watch swarm task dependency graphs",
		Long: `Swarmctl works on local task files: it builds the same dependency
graph the scheduler service builds and answers the same scheduling
questions (execution order, parallel groups, critical path, readiness)
without needing a running service.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := config.Load(); err != nil {
				ux.Warning(fmt.Sprintf("could not load config: %v", err))
			}
			// Initialize UX personality: flag beats config beats auto-detect.
			switch {
			case personalityLevel != "":
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			case config.Global.Output.Personality != "":
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(config.Global.Output.Personality))
			default:
				ux.InitPersonality()
			}
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the swarmctl version",
		Run:   runVersion,
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dagCmd) // subcommands wired in cmd_dag.go
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("swarmctl %s\n", Version)
}
