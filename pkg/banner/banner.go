package banner

import (
	"fmt"
	"strings"

	"funcgate/pkg/config"
)

const banner = `
███████╗██╗   ██╗███╗   ██╗ ██████╗ ██████╗  █████╗ ████████╗███████╗
██╔════╝██║   ██║████╗  ██║██╔════╝██╔════╝ ██╔══██╗╚══██╔══╝██╔════╝
█████╗  ██║   ██║██╔██╗ ██║██║     ██║  ███╗███████║   ██║   █████╗
██╔══╝  ██║   ██║██║╚██╗██║██║     ██║   ██║██╔══██║   ██║   ██╔══╝
██║     ╚██████╔╝██║ ╚████║╚██████╗╚██████╔╝██║  ██║   ██║   ███████╗
╚═╝      ╚═════╝ ╚═╝  ╚═══╝ ╚═════╝ ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚══════╝
`

// Print writes the startup banner: effective listen address, the route
// table and a quick curl example against the first route.
func Print(cfg *config.Config, addr, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   http://%s\n", addr)
	if cfg.Server.TLS.Port > 0 {
		fmt.Printf("TLS:      https://localhost:%d\n", cfg.Server.TLS.Port)
	}
	exe := cfg.Gateway.Executable
	if exe == "" {
		exe = config.DefaultExecutable
	}
	fmt.Printf("Runtime:  %s (one process per invocation)\n", exe)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config:   %s\n", sources)
	}

	fmt.Println("\n== Routes =====================================================")
	table := cfg.FunctionTable()
	for _, f := range table {
		fmt.Printf("ANY  %-30s -> %s.%s\n", f.Path, f.Entry, f.Handler)
	}

	if len(table) > 0 {
		fmt.Println("\n== Examples ===================================================")
		sample := strings.Replace(table[0].Path, "{proxy+}", "anything", 1)
		fmt.Printf("curl 'http://%s%s'\n", addr, sample)
		fmt.Printf("curl -X POST 'http://%s%s' -d '{\"hello\":\"world\"}'\n", addr, sample)
	}

	if cfg.Diagnostics.Enabled {
		fmt.Println("\n== Diagnostics ================================================")
		fmt.Printf("http://localhost:%d/healthz\n", cfg.Diagnostics.Port)
		fmt.Printf("http://localhost:%d/metrics\n", cfg.Diagnostics.Port)
		if cfg.Journal.Enabled {
			fmt.Printf("http://localhost:%d/journal\n", cfg.Diagnostics.Port)
		}
	}

	fmt.Println("\n== Logs =======================================================")
}
