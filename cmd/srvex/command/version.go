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
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...command.Version=...".
var Version = "dev"

// NewVersionCommand returns the cobra command for "version".
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "show srvex version",
		Run:   showVersion,
	}
}

func showVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version:%s\n", Version)
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(out, "Module:%s %s\n", info.Main.Path, info.Main.Version)
	}
	fmt.Fprintf(out, "Go:%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
