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

	"github.com/sage-x-project/sage/admission"
	"github.com/spf13/cobra"
)

var unbanCmd = &cobra.Command{
	Use:   "unban <session-key-hex>",
	Short: "Remove an identity from the banned list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bans, err := admission.LoadBanList(bannedFilePath)
		if err != nil {
			return fmt.Errorf("load ban list: %w", err)
		}
		if !bans.Unban(args[0]) {
			return fmt.Errorf("%s is not on the banned list", args[0])
		}
		if err := bans.Persist(); err != nil {
			return fmt.Errorf("persist ban list: %w", err)
		}
		fmt.Printf("unbanned %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unbanCmd)
}
