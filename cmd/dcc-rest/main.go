/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dcc-rest is the health certificate verification REST API.
package main

import (
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/cmd/dcc-rest/startcmd"
)

var logger = log.New("dcc-rest")

func main() {
	rootCmd := &cobra.Command{
		Use: "dcc-rest",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd(&startcmd.HTTPServer{}))

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to run dcc-rest", log.WithError(err))
	}
}
