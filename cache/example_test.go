package cache_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonwraymond/remoteops/cache"
	"github.com/jonwraymond/remoteops/client"
)

func ExampleNewTransport() {
	origin := client.TransportFunc(func(ctx context.Context, req *client.Request) (*client.Response, error) {
		if req.Header.Get("If-None-Match") == `"abc"` {
			return &client.Response{StatusCode: http.StatusNotModified, Header: http.Header{}}, nil
		}
		return &client.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Etag": {`"abc"`}},
			Body:       []byte(`{"status":"queued"}`),
		}, nil
	})

	tr := cache.NewTransport(origin, cache.TransportConfig{})
	for i := 0; i < 2; i++ {
		resp, _ := tr.Send(context.Background(), &client.Request{Method: http.MethodGet, URL: "/runs/7"})
		line := fmt.Sprintf("%d %s", resp.StatusCode, resp.Body)
		if how := resp.Header.Get(cache.CacheHeader); how != "" {
			line += " " + how
		}
		fmt.Println(line)
	}
	// Output:
	// 200 {"status":"queued"}
	// 200 {"status":"queued"} revalidated
}
