// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"time"

	"github.com/sage-x-project/sage/admission"
	"github.com/spf13/cobra"
)

var banReason string

var banCmd = &cobra.Command{
	Use:   "ban <session-key-hex>",
	Short: "Add an identity to the banned list",
	Long: `ban appends a banned-identity record to the file --banned-file
points at (§4.6). exchanged reads this file only at startup, so a
running server does not see the new ban, and banning a session key
does not close a live connection that uses it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bans, err := admission.LoadBanList(bannedFilePath)
		if err != nil {
			return fmt.Errorf("load ban list: %w", err)
		}
		bans.Ban(args[0], banReason, time.Now())
		if err := bans.Persist(); err != nil {
			return fmt.Errorf("persist ban list: %w", err)
		}
		fmt.Printf("banned %s\n", args[0])
		return nil
	},
}

func init() {
	banCmd.Flags().StringVar(&banReason, "reason", "", "human-readable ban reason")
	rootCmd.AddCommand(banCmd)
}
