// Command loadtest drives a mix of search, typeahead, suggestion and event
// traffic against the searcher (or the gateway, with -key) and reports
// latency percentiles per endpoint.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -principals ichigo,rukia -duration 30s
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type endpoint struct {
	name   string
	weight int
}

// the mix roughly matches interactive use: mostly typeahead and full search
var mix = []endpoint{
	{"search", 5},
	{"quick", 3},
	{"suggest", 1},
	{"event", 1},
}

var terms = []string{
	"multiply", "divide", "fractions", "percentages", "cosmetology",
	"mutliply", "fract", "percentag", "zanpakuto", "bankai",
	"multiply AND divide", "fractions OR percentages", "divide NOT multiply",
}

type sample struct {
	endpoint string
	status   int
	latency  time.Duration
	err      error
}

type recorder struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples[s.endpoint] = append(r.samples[s.endpoint], s)
	r.mu.Unlock()
}

type target struct {
	base       string
	key        string
	principals []string
	client     *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher or gateway")
	key := flag.String("key", "", "gateway API key; when empty X-Principal is sent directly")
	principals := flag.String("principals", "ichigo,rukia,renji", "comma separated principals to search as")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	t := target{
		base:       strings.TrimRight(*baseURL, "/"),
		key:        *key,
		principals: strings.Split(*principals, ","),
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        *concurrency * 2,
				MaxIdleConnsPerHost: *concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	fmt.Println("=== Entity Search Load Test ===")
	fmt.Printf("Target:      %s\n", t.base)
	fmt.Printf("Principals:  %s\n", strings.Join(t.principals, ", "))
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n\n", *duration)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	rec := &recorder{samples: make(map[string][]sample)}
	schedule := weighted(mix)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < *concurrency; w++ {
		g.Go(func() error {
			for i := w; gctx.Err() == nil; i++ {
				principal := t.principals[i%len(t.principals)]
				term := terms[i%len(terms)]
				rec.add(t.call(gctx, schedule[i%len(schedule)], principal, term, fmt.Sprintf("%d-%d", w, i)))
			}
			return nil
		})
	}
	_ = g.Wait()

	if !report(os.Stdout, rec, *duration) {
		fmt.Println("\nWARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func weighted(eps []endpoint) []string {
	var out []string
	for _, ep := range eps {
		for i := 0; i < ep.weight; i++ {
			out = append(out, ep.name)
		}
	}
	return out
}

func (t target) call(ctx context.Context, name, principal, term, seq string) sample {
	var req *http.Request
	var err error
	switch name {
	case "search":
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/api/v1/search?limit=10&q="+url.QueryEscape(term), nil)
	case "quick":
		prefix := term
		if len(prefix) > 5 {
			prefix = prefix[:5]
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/api/v1/search/quick?q="+url.QueryEscape(prefix), nil)
	case "suggest":
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/api/v1/books/suggest?q="+url.QueryEscape(term), nil)
	case "event":
		body, _ := json.Marshal(map[string]any{
			"creator":     principal,
			"change_type": "CREATED",
			"data_type":   "note",
			"data": map[string]any{
				"key":     "loadtest-" + principal + "-" + seq,
				"creator": principal,
				"body":    "load test note about " + term,
			},
		})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/api/v1/events", bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return sample{endpoint: name, err: err}
	}
	if t.key != "" {
		req.Header.Set("Authorization", "Bearer "+t.key)
	} else {
		req.Header.Set("X-Principal", principal)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return sample{endpoint: name, latency: latency, err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return sample{endpoint: name, status: resp.StatusCode, latency: latency}
}

func report(out io.Writer, rec *recorder, duration time.Duration) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	names := make([]string, 0, len(rec.samples))
	total := 0
	for name, samples := range rec.samples {
		names = append(names, name)
		total += len(samples)
	}
	sort.Strings(names)
	if total == 0 {
		return false
	}
	fmt.Fprintf(out, "Total requests: %d (%.1f req/s)\n\n", total, float64(total)/duration.Seconds())
	fmt.Fprintf(out, "%-8s %7s %7s %10s %10s %10s %10s\n", "ENDPOINT", "COUNT", "ERRORS", "P50", "P90", "P99", "MAX")
	for _, name := range names {
		samples := rec.samples[name]
		var latencies []time.Duration
		errs := 0
		codes := map[int]int{}
		for _, s := range samples {
			if s.err != nil || s.status >= 300 {
				errs++
			}
			if s.err == nil {
				latencies = append(latencies, s.latency)
				codes[s.status]++
			}
		}
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		fmt.Fprintf(out, "%-8s %7d %7d %10s %10s %10s %10s  %s\n", name, len(samples), errs,
			percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99),
			percentile(latencies, 100), formatCodes(codes))
	}
	return true
}

func formatCodes(codes map[int]int) string {
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, code := range keys {
		parts[i] = fmt.Sprintf("%d:%d", code, codes[code])
	}
	return strings.Join(parts, " ")
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx].Round(time.Microsecond)
}
