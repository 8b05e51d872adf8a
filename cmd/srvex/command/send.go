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
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel"

	"github.com/srediag/shmring/pkg/channel"
	"github.com/srediag/shmring/pkg/config"
	"github.com/srediag/shmring/pkg/region"
)

type sendFlags struct {
	typeID int32
}

// NewSendCommand returns the cobra command for "send".
func NewSendCommand() *cobra.Command {
	sf := &sendFlags{}
	cc := &cobra.Command{
		Use:   "send <message>",
		Short: "send one message to the service and print its echo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(GlobalFlagsInstance.Viper, cmd)
			if err != nil {
				return err
			}
			return sendCommandFunc(cmd, cfg, sf, args[0])
		},
	}
	cc.Flags().Int32Var(&sf.typeID, "type-id", 1, "message type id, 1 or more")
	cc.Flags().Duration(config.KeyAttachTimeout, config.DefaultConfig().AttachTimeout, "how long to wait for the service to create the shared file")
	return cc
}

func sendCommandFunc(cmd *cobra.Command, cfg *config.Config, sf *sendFlags, message string) error {
	if err := config.VerifyConfig(cfg); err != nil {
		return err
	}
	ctx, cancel := signalCtx(cmd)
	defer cancel()
	actx, acancel := context.WithTimeout(ctx, cfg.AttachTimeout)
	defer acancel()

	r, err := region.AttachWithRetry(actx, cfg.Path, region.DefaultAttachBackOff(), region.WithTracer(otel.Tracer(cliName)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no service at %s after %s", cfg.Path, cfg.AttachTimeout)
		}
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warnf("close %s: %v", cfg.Path, err)
		}
	}()

	pollers, err := cfg.Pollers()
	if err != nil {
		return err
	}
	ch, err := channel.FromRegion(r, channel.Client, channel.WithPoller(pollers))
	if err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString(message)

	out := cmd.OutOrStdout()
	if err := ch.Send(ctx, sf.typeID, buf.B); err != nil {
		return err
	}
	fmt.Fprintln(out, "Message sent!")
	return ch.Receive(ctx, func(_ int32, payload []byte) {
		fmt.Fprintf(out, "Message is: %s\n", payload)
	})
}
