/*
 * Copyright 2026 The DataProvider Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MelbourneDeveloper/DataProvider-sub005/client"
)

func newClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "clients",
		Aliases: []string{"ls"},
		Short:   "List the replicas registered on the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.ListClients(context.Background(), rpcAddr)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.Style().Options.DrawBorder = false
			tw.Style().Options.SeparateColumns = false
			tw.Style().Options.SeparateFooter = false
			tw.Style().Options.SeparateHeader = false
			tw.Style().Options.SeparateRows = false
			tw.AppendHeader(table.Row{
				"ORIGIN ID",
				"STATUS",
				"SYNCED",
				"PUSHED",
				"RESYNC",
				"LAST SEEN",
			})
			for _, c := range resp.Clients {
				tw.AppendRow(table.Row{
					c.OriginID,
					c.Status,
					c.LastSyncVersion,
					c.PushedVersion,
					c.ResyncRequired,
					c.LastSyncTimestamp.Format(time.RFC3339),
				})
			}
			cmd.Printf("%s\n", tw.Render())
			cmd.Printf("safe purge version: %d\n", resp.SafePurgeVersion)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newClientsCmd())
}
