package main

import (
	"context"
	"log"
	"net"
	"strconv"
	"strings"

	"funcgate/internal/app"
	"funcgate/pkg/banner"
	"funcgate/pkg/config"
	"funcgate/pkg/logger"
	"funcgate/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	flags := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(flags.Config, flags.Set["config"])

	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// flags win over env/config for the listen address
	if flags.Set["addr"] {
		host, port, err := net.SplitHostPort(flags.Addr)
		if err != nil {
			log.Fatalf("invalid -addr %q: %v", flags.Addr, err)
		}
		cfg.Server.Address = host
		if pi, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = pi
		}
	}

	if cfg.Gateway.Silent {
		logger.Silence()
	} else {
		logger.InitWithLevel(cfg.Logging.Level)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	if !cfg.Gateway.Silent {
		srcs := []string{}
		if len(flags.Set) > 0 {
			srcs = append(srcs, "flags")
		}
		if envUsed {
			srcs = append(srcs, "env")
		}
		if _, err := config.Load(cfgPath); err == nil {
			srcs = append(srcs, cfgPath)
		}
		verStr := version
		if commit != "none" {
			verStr = verStr + " (" + commit + ")"
		}
		if buildDate != "unknown" {
			verStr = verStr + " @ " + buildDate
		}
		banner.Print(cfg, cfg.Addr(), strings.Join(srcs, ", "), verStr)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		log.Fatalf("funcgate stopped: %v", err)
	}
}
