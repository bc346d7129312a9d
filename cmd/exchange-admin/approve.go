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

	"github.com/sage-x-project/sage/protocol/codec"
	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <fingerprint>",
	Short: "Approve a connection waiting in the approval gate",
	Long: `approve sends a CmdApprove command over the same mutual-TLS wire
protocol exchanged clients use, addressing the waiting connection by its
certificate fingerprint (§4 supplemented administrator interface).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialAdmin(serverAddr, adminCertFile, adminKeyFile, caFile)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", serverAddr, err)
		}
		defer client.close()

		if err := client.decide(codec.CmdApprove, args[0]); err != nil {
			return fmt.Errorf("approve %s: %w", args[0], err)
		}
		fmt.Printf("approved %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(approveCmd)
}
