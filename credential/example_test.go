package credential_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
)

func ExampleCache() {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	source := credential.SourceFunc(func(ctx context.Context, key string) (credential.Raw, error) {
		return credential.Raw{
			Secret:    []byte("session-token"),
			ExpiresAt: clk.Now().Add(time.Hour),
		}, nil
	})

	cache := credential.NewCache(source, credential.CacheConfig{Clock: clk})
	defer func() { _ = cache.Close() }()

	key, _ := credential.KeyFor("sts", map[string]string{"role": "deploy"})
	cred, err := cache.Get(context.Background(), key)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(cred.ExpiresAt.Sub(cred.RefreshAt))
	fmt.Println(cache.Stats().Misses)
	// Output:
	// 5m0s
	// 1
}
