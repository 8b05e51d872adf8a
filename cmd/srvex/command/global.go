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

// Package command implements the srvex subcommands.
package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/shmring/pkg/config"
)

// GlobalFlags are the flags shared by every subcommand.
type GlobalFlags struct {
	// Viper merges flags, SRVEX_* environment and config file.
	Viper    *viper.Viper
	LogLevel int
}

// GlobalFlagsInstance holds the parsed global flags.
var GlobalFlagsInstance = GlobalFlags{Viper: config.NewViper()}

// loadConfig binds the flags of cmd, its parents' persistent flags included,
// and builds the configuration the command runs with.
func loadConfig(v *viper.Viper, cmd *cobra.Command) (*config.Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// signalCtx returns a context cancelled on SIGINT or SIGTERM.
func signalCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
