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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MelbourneDeveloper/DataProvider-sub005/server"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/mongo"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/messagebroker"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/rpc"
)

var (
	gracefulTimeout = 10 * time.Second
)

var (
	flagConfPath string
	flagLogLevel string

	watchHeartbeatInterval time.Duration

	housekeepingInterval            time.Duration
	housekeepingInactivityThreshold time.Duration

	mongoConnectionURI     string
	mongoConnectionTimeout time.Duration
	mongoDatabase          string
	mongoPingTimeout       time.Duration

	kafkaAddresses    string
	kafkaTopic        string
	kafkaWriteTimeout time.Duration

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start the sync hub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.RPC.WatchHeartbeatInterval = watchHeartbeatInterval.String()
			conf.Housekeeping.Interval = housekeepingInterval.String()
			conf.Housekeeping.InactivityThreshold = housekeepingInactivityThreshold.String()

			if mongoConnectionURI != "" {
				conf.Mongo = &mongo.Config{
					ConnectionURI:     mongoConnectionURI,
					ConnectionTimeout: mongoConnectionTimeout.String(),
					Database:          mongoDatabase,
					PingTimeout:       mongoPingTimeout.String(),
				}
			}

			if kafkaAddresses != "" {
				conf.Kafka = &messagebroker.Config{
					Addresses:    kafkaAddresses,
					Topic:        kafkaTopic,
					WriteTimeout: kafkaWriteTimeout.String(),
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}

			hub, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := hub.Start(); err != nil {
				return err
			}

			if code := handleSignal(hub); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(r *server.Hub) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-r.ShutdownCh():
		// already shut down from the inside
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := r.Shutdown(graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().IntVar(
		&conf.RPC.Port,
		"rpc-port",
		server.DefaultRPCPort,
		"RPC port",
	)
	cmd.Flags().StringVar(
		&conf.RPC.CertFile,
		"rpc-cert-file",
		"",
		"RPC certification file's path",
	)
	cmd.Flags().StringVar(
		&conf.RPC.KeyFile,
		"rpc-key-file",
		"",
		"RPC key file's path",
	)
	cmd.Flags().Uint64Var(
		&conf.RPC.MaxRequestBytes,
		"rpc-max-requests-bytes",
		0,
		"Maximum client request size in bytes the server will accept.",
	)
	cmd.Flags().DurationVar(
		&watchHeartbeatInterval,
		"watch-heartbeat-interval",
		rpc.DefaultWatchHeartbeatInterval,
		"Interval between keep-alive comments on watch streams.",
	)
	cmd.Flags().IntVar(
		&conf.Profiling.Port,
		"profiling-port",
		server.DefaultProfilingPort,
		"Profiling port",
	)
	cmd.Flags().BoolVar(
		&conf.Profiling.EnablePprof,
		"enable-pprof",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().DurationVar(
		&housekeepingInterval,
		"housekeeping-interval",
		server.DefaultHousekeepingInterval,
		"housekeeping interval between housekeeping runs",
	)
	cmd.Flags().DurationVar(
		&housekeepingInactivityThreshold,
		"housekeeping-inactivity-threshold",
		server.DefaultHousekeepingInactivityThreshold,
		"how long a replica may stay silent before deactivation",
	)
	cmd.Flags().IntVar(
		&conf.Housekeeping.CandidatesLimit,
		"housekeeping-candidates-limit",
		server.DefaultHousekeepingCandidatesLimit,
		"candidates limit for a single housekeeping run",
	)
	cmd.Flags().BoolVar(
		&conf.Housekeeping.PurgeDisabled,
		"housekeeping-purge-disabled",
		false,
		"Disable purging consumed log entries during housekeeping.",
	)
	cmd.Flags().StringVar(
		&mongoConnectionURI,
		"mongo-connection-uri",
		"",
		"MongoDB's connection URI",
	)
	cmd.Flags().DurationVar(
		&mongoConnectionTimeout,
		"mongo-connection-timeout",
		server.DefaultMongoConnectionTimeout,
		"Mongo DB's connection timeout",
	)
	cmd.Flags().StringVar(
		&mongoDatabase,
		"mongo-database",
		server.DefaultMongoDatabase,
		"The database name in MongoDB",
	)
	cmd.Flags().DurationVar(
		&mongoPingTimeout,
		"mongo-ping-timeout",
		server.DefaultMongoPingTimeout,
		"Mongo DB's ping timeout",
	)
	cmd.Flags().StringVar(
		&kafkaAddresses,
		"kafka-addresses",
		"",
		"Comma-separated Kafka broker addresses for the change feed",
	)
	cmd.Flags().StringVar(
		&kafkaTopic,
		"kafka-topic",
		server.DefaultKafkaTopic,
		"Kafka topic the change feed is produced to",
	)
	cmd.Flags().DurationVar(
		&kafkaWriteTimeout,
		"kafka-write-timeout",
		server.DefaultKafkaWriteTimeout,
		"Write timeout for the Kafka producer",
	)
	cmd.Flags().IntVar(
		&conf.Backend.PullBatchSize,
		"pull-batch-size",
		server.DefaultPullBatchSize,
		"Batch size served when a pull request does not name one.",
	)
	cmd.Flags().IntVar(
		&conf.Backend.PullMaxBatchSize,
		"pull-max-batch-size",
		server.DefaultPullMaxBatchSize,
		"Upper bound on the batch size a pull request may ask for.",
	)
	cmd.Flags().IntVar(
		&conf.Backend.MaxSubscribersPerHub,
		"max-subscribers",
		0,
		"Maximum number of concurrent watch subscriptions (0 for unlimited).",
	)
	cmd.Flags().StringVar(
		&conf.Backend.Hostname,
		"hostname",
		server.DefaultHostname,
		"Hub hostname used in metrics",
	)

	rootCmd.AddCommand(cmd)
}
