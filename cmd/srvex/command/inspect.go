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

package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srediag/shmring/pkg/region"
)

// NewInspectCommand returns the cobra command for "inspect".
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "print the header and ring cursors of the shared file",
		Args:  cobra.NoArgs,
		RunE:  inspectCommandFunc,
	}
}

func inspectCommandFunc(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(GlobalFlagsInstance.Viper, cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalCtx(cmd)
	defer cancel()
	snap, err := region.Describe(ctx, cfg.Path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), snap)
	return nil
}
