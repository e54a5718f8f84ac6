package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

func buildRequest(addr, endpoint, target, message string) (*http.Request, error) {
	switch endpoint {
	case "ping":
		return http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/api/ping", addr), nil)
	case "redirect":
		query := url.Values{"target": {target}}
		return http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/api/redirect?%s", addr, query.Encode()), nil)
	case "echo":
		body, err := json.Marshal(map[string]string{"message": message})
		if err != nil {
			return nil, err
		}
		request, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/api/echo", addr), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	}
	return nil, fmt.Errorf("unknown endpoint '%s'", endpoint)
}

func main() {
	addr := flag.String(
		"addr", "localhost:8080", "address of the gateway in <host>:<port> form")
	endpoint := flag.String("endpoint", "ping", "endpoint to call: ping, redirect or echo")
	target := flag.String("target", "", "redirect target to validate")
	message := flag.String("message", "", "message to echo")
	count := flag.Int("count", 1, "number of requests to send")
	flag.Parse()

	flag.VisitAll(func(f *flag.Flag) {
		fmt.Printf("Flag: --%s=%q\n", f.Name, f.Value)
	})

	// Redirect responses are printed, not followed.
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	for i := 0; i < *count; i++ {
		request, err := buildRequest(*addr, *endpoint, *target, *message)
		if err != nil {
			fmt.Printf("request error: %s\n", err.Error())
			os.Exit(1)
		}
		response, err := client.Do(request)
		if err != nil {
			fmt.Printf("request error: %s\n", err.Error())
			os.Exit(1)
		}
		body, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			fmt.Printf("error reading response: %s\n", err.Error())
			os.Exit(1)
		}

		fmt.Printf("response: %s\n", response.Status)
		for _, header := range []string{"Location", "Retry-After", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "X-Request-Id"} {
			if value := response.Header.Get(header); value != "" {
				fmt.Printf("%s: %s\n", header, value)
			}
		}
		if len(body) > 0 {
			fmt.Printf("%s\n", body)
		}
	}
}
