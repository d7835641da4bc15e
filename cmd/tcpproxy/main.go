// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vizee/tcpproxy/internal/config"
	"github.com/vizee/tcpproxy/internal/pipebuf"
	"github.com/vizee/tcpproxy/internal/proxy"
	"github.com/vizee/tcpproxy/pkg/logging"
)

func main() {
	var (
		configFile string
		listen     string
		backend    string
	)
	flag.StringVar(&configFile, "c", "", "YAML config file")
	flag.StringVar(&listen, "l", "", "listen address (host:port)")
	flag.StringVar(&backend, "d", "", "backend address (host:port)")
	flag.Parse()

	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", configFile, err)
			os.Exit(1)
		}
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}

	if cfg.Logging.Level != "" || cfg.Logging.File != "" {
		if err := logging.Setup(cfg.Logging.Level, cfg.Logging.File); err != nil {
			fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
			os.Exit(1)
		}
	}
	defer logging.Cleanup()

	size, err := pipebuf.ProbeSize()
	if err != nil {
		logging.Fatalf("probe pipe capacity: %v", err)
	}
	cfg.PipeSize = size

	p, err := proxy.New(cfg)
	if err != nil {
		logging.Fatalf("start proxy: %v", err)
	}
	logging.Fatalf("proxy stopped: %v", p.Serve())
}
