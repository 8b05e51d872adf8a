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

// Package config holds the settings of the srvex service and client.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/srediag/shmring/pkg/poller"
	"github.com/srediag/shmring/pkg/region"
)

// EnvPrefix prefixes the environment variable of every key, with dashes
// turned into underscores: SRVEX_PATH, SRVEX_ADMIN_ADDR.
const EnvPrefix = "SRVEX"

// Keys shared by the command line flags, the environment and the config file.
const (
	KeyConfigFile       = "config"
	KeyPath             = "path"
	KeyInboundCapacity  = "inbound-capacity"
	KeyOutboundCapacity = "outbound-capacity"
	KeyPoller           = "poller"
	KeyBacklog          = "backlog"
	KeyAdminAddr        = "admin-addr"
	KeyHeartbeatTimeout = "heartbeat-timeout"
	KeyAttachTimeout    = "attach-timeout"
)

const (
	defaultBacklog          = 1024
	defaultAdminAddr        = "127.0.0.1:9464"
	defaultHeartbeatTimeout = 5 * time.Second
	defaultAttachTimeout    = 30 * time.Second
)

// Config is the configuration of one srvex process.
type Config struct {
	// Path of the shared file.
	Path string
	// InboundCapacity and OutboundCapacity are the ring data capacities used
	// when creating the region. Powers of two.
	InboundCapacity  int
	OutboundCapacity int
	// Poller names the idle strategy, see poller.Strategies.
	Poller string
	// Backlog bounds the records the service holds while the outbound ring is full.
	Backlog int
	// AdminAddr is the listen address of the health and metrics server. Empty disables it.
	AdminAddr string
	// HeartbeatTimeout is the liveness limit for the service receive loop.
	HeartbeatTimeout time.Duration
	// AttachTimeout bounds how long a client waits for the region.
	AttachTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:             region.DefaultPath(),
		InboundCapacity:  region.DefaultCapacity,
		OutboundCapacity: region.DefaultCapacity,
		Poller:           poller.StrategyYield,
		Backlog:          defaultBacklog,
		AdminAddr:        defaultAdminAddr,
		HeartbeatTimeout: defaultHeartbeatTimeout,
		AttachTimeout:    defaultAttachTimeout,
	}
}

// VerifyConfig checks config and reports every problem found.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("config: nil")
	}
	var errs []error
	if config.Path == "" {
		errs = append(errs, errors.New("config: empty path"))
	}
	if err := config.Region().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if _, err := poller.Factory(config.Poller); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if config.Backlog < 0 {
		errs = append(errs, fmt.Errorf("config: negative backlog %d", config.Backlog))
	}
	if config.HeartbeatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: heartbeat timeout %s must be positive", config.HeartbeatTimeout))
	}
	if config.AttachTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: attach timeout %s must be positive", config.AttachTimeout))
	}
	return errors.Join(errs...)
}

// NewViper returns a viper instance holding the defaults and reading the
// SRVEX_* environment. An empty variable counts as set, so SRVEX_ADMIN_ADDR=""
// disables the admin server.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault(KeyPath, d.Path)
	v.SetDefault(KeyInboundCapacity, d.InboundCapacity)
	v.SetDefault(KeyOutboundCapacity, d.OutboundCapacity)
	v.SetDefault(KeyPoller, d.Poller)
	v.SetDefault(KeyBacklog, d.Backlog)
	v.SetDefault(KeyAdminAddr, d.AdminAddr)
	v.SetDefault(KeyHeartbeatTimeout, d.HeartbeatTimeout)
	v.SetDefault(KeyAttachTimeout, d.AttachTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

// Load builds a Config from v, first reading the file named by KeyConfigFile
// if one is set. Flags bound to v take precedence over the environment, which
// takes precedence over the file.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return &Config{
		Path:             v.GetString(KeyPath),
		InboundCapacity:  v.GetInt(KeyInboundCapacity),
		OutboundCapacity: v.GetInt(KeyOutboundCapacity),
		Poller:           v.GetString(KeyPoller),
		Backlog:          v.GetInt(KeyBacklog),
		AdminAddr:        v.GetString(KeyAdminAddr),
		HeartbeatTimeout: v.GetDuration(KeyHeartbeatTimeout),
		AttachTimeout:    v.GetDuration(KeyAttachTimeout),
	}, nil
}

// Region returns the region capacities.
func (c *Config) Region() region.Config {
	return region.Config{InboundCapacity: c.InboundCapacity, OutboundCapacity: c.OutboundCapacity}
}

// Pollers returns the constructor for the configured idle strategy.
func (c *Config) Pollers() (func() poller.Poller, error) {
	return poller.Factory(c.Poller)
}
