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
	"text/tabwriter"
	"time"

	"github.com/sage-x-project/sage/admission"
	"github.com/spf13/cobra"
)

var listBansCmd = &cobra.Command{
	Use:   "list-bans",
	Short: "List banned identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		bans, err := admission.LoadBanList(bannedFilePath)
		if err != nil {
			return fmt.Errorf("load ban list: %w", err)
		}

		records := bans.List()
		if len(records) == 0 {
			fmt.Println("No banned identities")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "SESSION KEY\tBANNED AT\tREASON\n")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.SessionKeyHex, time.Unix(r.BannedAtUnix, 0).Format(time.RFC3339), r.Reason)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listBansCmd)
}
