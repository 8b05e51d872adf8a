/*
 * Copyright 2025 SREDiag Authors
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
	"os"

	"github.com/spf13/cobra"

	"github.com/srediag/shmring/cmd/srvex/command"
	"github.com/srediag/shmring/internal/logging"
	"github.com/srediag/shmring/pkg/config"
)

const (
	cliName        = "srvex"
	cliDescription = "Echo service and client over a shared memory ring pair."
)

var rootCmd = &cobra.Command{
	Use:          cliName,
	Short:        cliDescription,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("log-level") {
			logging.SetLevel(command.GlobalFlagsInstance.LogLevel)
		}
		return nil
	},
}

func init() {
	d := config.DefaultConfig()
	rootCmd.PersistentFlags().String(config.KeyConfigFile, "", "config file (yaml, toml or json) with the same keys as the flags")
	rootCmd.PersistentFlags().String(config.KeyPath, d.Path, "shared file path, env SRVEX_PATH")
	rootCmd.PersistentFlags().String(config.KeyPoller, d.Poller, "idle strategy: spin, yield, sleep or backoff, env SRVEX_POLLER")
	rootCmd.PersistentFlags().IntVar(&command.GlobalFlagsInstance.LogLevel, "log-level", logging.Level(),
		"0 trace, 1 debug, 2 info, 3 warn, 4 error, 5 silent, env "+logging.EnvLogLevel)

	rootCmd.AddCommand(
		command.NewServeCommand(),
		command.NewSendCommand(),
		command.NewInspectCommand(),
		command.NewVersionCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
