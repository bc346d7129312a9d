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
	"strings"

	"github.com/spf13/cobra"
)

var listPendingCmd = &cobra.Command{
	Use:   "list-pending",
	Short: "List connections waiting for administrator approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialAdmin(serverAddr, adminCertFile, adminKeyFile, caFile)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", serverAddr, err)
		}
		defer client.close()

		payload, err := client.listPending()
		if err != nil {
			return fmt.Errorf("list pending: %w", err)
		}
		payload = strings.TrimRight(payload, "\n")
		if payload == "" {
			fmt.Println("No connections waiting for approval")
			return nil
		}
		for _, fp := range strings.Split(payload, "\n") {
			fmt.Println(fp)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listPendingCmd)
}
