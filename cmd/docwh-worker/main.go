/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"
	"log"
	"os"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/signal"
	"github.com/wentaojin/docwh/version"
	"github.com/wentaojin/docwh/worker"
	"go.uber.org/zap"
)

func main() {
	cfg := worker.NewConfig()
	if err := cfg.Parse(os.Args[1:]); err != nil {
		log.Fatalf("start worker failed. error is [%s], Use '--help' for help.", err)
	}

	logger.NewRootLogger(cfg.LogConfig)

	version.RecordAppVersion("docwh-worker", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	signal.SetupSignalHandler(func() {
		cancel()
	})

	srv := worker.NewServer(cfg)
	err := srv.Start(ctx)
	srv.Close()
	if err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}

	// syncing stdout may fail with EINVAL
	_ = logger.Sync()
}
