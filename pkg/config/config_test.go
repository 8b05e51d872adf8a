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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmring/pkg/poller"
	"github.com/srediag/shmring/pkg/region"
	"github.com/srediag/shmring/pkg/ringbuf"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestDefaultConfig() {
	config := DefaultConfig()
	s.Require().NoError(VerifyConfig(config))
	s.Equal(region.DefaultPath(), config.Path)
	s.Equal(region.DefaultConfig(), config.Region())

	f, err := config.Pollers()
	s.Require().NoError(err)
	s.Equal(poller.Yielding{}, f())
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	s.Require().Error(VerifyConfig(nil))

	config := DefaultConfig()
	config.InboundCapacity = 1000
	err := VerifyConfig(config)
	s.Require().ErrorIs(err, ringbuf.ErrCapacity)
	config.InboundCapacity = 1 << 20

	config.Poller = "nap"
	s.Require().ErrorIs(VerifyConfig(config), poller.ErrUnknownStrategy)
	config.Poller = poller.StrategyBackoff

	config.Path = ""
	config.Backlog = -1
	config.HeartbeatTimeout = 0
	config.AttachTimeout = -time.Second
	err = VerifyConfig(config)
	s.Require().Error(err)
	for _, want := range []string{"empty path", "negative backlog", "heartbeat timeout", "attach timeout"} {
		s.Contains(err.Error(), want)
	}

	config = DefaultConfig()
	config.Backlog = 0
	config.AdminAddr = ""
	s.Require().NoError(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestLoadDefaults() {
	config, err := Load(NewViper())
	s.Require().NoError(err)
	s.Equal(DefaultConfig(), config)
}

func (s *ConfigTestSuite) TestLoadEnv() {
	s.T().Setenv("SRVEX_PATH", "/tmp/other.dat")
	s.T().Setenv("SRVEX_POLLER", poller.StrategySpin)
	s.T().Setenv("SRVEX_ADMIN_ADDR", "")
	s.T().Setenv("SRVEX_INBOUND_CAPACITY", "8192")
	s.T().Setenv("SRVEX_HEARTBEAT_TIMEOUT", "250ms")

	config, err := Load(NewViper())
	s.Require().NoError(err)
	s.Equal("/tmp/other.dat", config.Path)
	s.Equal(poller.StrategySpin, config.Poller)
	s.Empty(config.AdminAddr, "an empty admin address disables the server")
	s.Equal(8192, config.InboundCapacity)
	s.Equal(250*time.Millisecond, config.HeartbeatTimeout)
	s.NoError(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestLoadFile() {
	file := filepath.Join(s.T().TempDir(), "srvex.yaml")
	s.Require().NoError(os.WriteFile(file, []byte("path: /tmp/file.dat\nbacklog: 16\nattach-timeout: 2s\npoller: backoff\n"), 0o600))
	s.T().Setenv("SRVEX_POLLER", poller.StrategySleep)

	v := NewViper()
	v.Set(KeyConfigFile, file)
	config, err := Load(v)
	s.Require().NoError(err)
	s.Equal("/tmp/file.dat", config.Path)
	s.Equal(16, config.Backlog)
	s.Equal(2*time.Second, config.AttachTimeout)
	s.Equal(poller.StrategySleep, config.Poller, "environment wins over the file")

	v = NewViper()
	v.Set(KeyConfigFile, filepath.Join(s.T().TempDir(), "missing.yaml"))
	_, err = Load(v)
	s.Error(err)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
