// SPDX-License-Identifier: GPL-2.0-only

package main

// This project is GPL-2.0, but this file contains code from generic-device-plugin.
// Original license notice below.
//
// Copyright 2020 the generic-device-plugin authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimDevice is one device to announce on the simulated bus at start-up.
type SimDevice struct {
	Name       string `json:"name"`
	Addr       uint16 `json:"addr"`
	Compatible string `json:"compatible"`
}

// initConfig defines config flags, config file, and envs
func initConfig() error {
	cfgFile := flag.String("config", "", "Path to the config file.")
	flag.String("firmware-directory", "/lib/firmware", "The directory firmware images are loaded from.")
	flag.String("log-level", logLevelInfo, fmt.Sprintf("Log level to use. Possible values: %s", availableLogLevels))
	flag.String("listen", ":8080", "The address at which to listen for health and metrics.")

	flag.Parse()
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	if *cfgFile != "" {
		viper.SetConfigFile(*cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/devbind/")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
		} else {
			// Config file was found but another error was produced
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

func getConfiguredDevices() ([]SimDevice, error) {
	rawDevices := viper.Get("devices")
	if rawDevices == nil {
		return nil, nil
	}
	raw, ok := rawDevices.([]interface{})
	if !ok {
		return nil, fmt.Errorf("failed to decode devices: unexpected type: %T", rawDevices)
	}

	devices := make([]SimDevice, len(raw))
	for i, def := range raw {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &devices[i],
			TagName: "json",
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(def); err != nil {
			return nil, fmt.Errorf("failed to decode device data %q: %w", def, err)
		}
	}
	return devices, nil
}
