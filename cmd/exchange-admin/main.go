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
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "exchange-admin",
	Short: "SAGE Exchange Admin CLI - ban, approval, and pending-connection management",
	Long: `exchange-admin manages a running exchanged server: the local ban
list (ban, unban, list-bans) and the administrator approval gate
(approve, reject, list-pending) over the same mutual-TLS wire protocol
exchanged clients use.`,
}

var (
	bannedFilePath string
	serverAddr     string
	adminCertFile  string
	adminKeyFile   string
	caFile         string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&bannedFilePath, "banned-file", "./data/banned.dat", "path to the banned-identity file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:1512", "exchanged server address")
	rootCmd.PersistentFlags().StringVar(&adminCertFile, "cert", "", "administrator TLS client certificate")
	rootCmd.PersistentFlags().StringVar(&adminKeyFile, "key", "", "administrator TLS client key")
	rootCmd.PersistentFlags().StringVar(&caFile, "ca", "", "server TLS CA bundle")

	// Note: commands are registered in their own files:
	// - ban.go / unban.go / listbans.go: local ban-list file operations
	// - approve.go / reject.go / listpending.go: wire commands over TLS
}
