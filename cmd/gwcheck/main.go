// gwcheck probes a running funcgate instance: the gateway route given by
// -path and, when -diag is set, the diagnostics /healthz. Exits non-zero
// when any probe fails, so it slots into scripts and CI.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "localhost:3000", "gateway host:port to probe")
	path := flag.String("path", "/", "gateway path to request")
	diag := flag.String("diag", "", "diagnostics host:port (optional)")
	count := flag.Int("count", 1, "number of probe rounds")
	interval := flag.Duration("interval", time.Second, "delay between rounds")
	timeout := flag.Duration("timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	failed := 0
	for i := 0; i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}
		if !probe(client, fmt.Sprintf("http://%s%s", *addr, *path), *timeout) {
			failed++
		}
		if *diag != "" && !probe(client, fmt.Sprintf("http://%s/healthz", *diag), *timeout) {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("gwcheck: %d probe(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("gwcheck: ok")
}

func probe(client *fasthttp.Client, url string, timeout time.Duration) bool {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	start := time.Now()
	if err := client.DoTimeout(req, resp, timeout); err != nil {
		fmt.Printf("FAIL %s: %v\n", url, err)
		return false
	}
	code := resp.StatusCode()
	fmt.Printf("%-4d %s (%s)\n", code, url, time.Since(start).Round(time.Millisecond))
	return code < fasthttp.StatusInternalServerError
}
