package client_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/credential"
)

func ExampleExecutor() {
	transport := client.TransportFunc(func(ctx context.Context, req *client.Request) (*client.Response, error) {
		return &client.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"X-Ratelimit-Remaining": {"99"}},
			Body:       []byte(req.Header.Get("Authorization")),
		}, nil
	})
	signer := client.SignerFunc(func(req *client.Request, cred credential.Credential) error {
		req.Header.Set("Authorization", "Bearer "+string(cred.Secret))
		return nil
	})

	exec, err := client.NewExecutor(client.ExecutorConfig{Transport: transport, Signer: signer})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	resp, err := exec.Execute(context.Background(), &client.Request{Method: http.MethodGet, URL: "/user"}, "api")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(resp.StatusCode, len(resp.Body))
	// Output: 200 0
}
