/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"

	meshd "github.com/meshircd/meshd"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

func main() {
	wg := conc.NewWaitGroup()
	defer wg.Wait()

	logger := logrus.New()
	logger.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "sub-component", "command"},
	})

	meshd.Warmup(logger)

	server := meshd.NewServer()
	server.SetHostname("mesh.localhost.net")
	server.SetNetwork("meshnet")
	server.SetAddress(":6667")
	server.SetMOTD("Welcome to meshd.")

	wg.Go(func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Fatal(fmt.Errorf("failed to start server: %w", err))
		}
	})

	log := logger.WithField("component", "main")
	killSignals := make(chan os.Signal, 1)
	signal.Notify(killSignals, syscall.SIGINT, syscall.SIGTERM)

	sig := <-killSignals
	log.Infof("shutting down, received signal: %s", sig)
}
