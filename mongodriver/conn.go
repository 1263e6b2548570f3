package mongodriver

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// ConnOptions holds the settings used to open a client.
type ConnOptions struct {
	URI            string
	AppName        string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// Connect opens a client and pings the primary so that a bad address is
// reported at startup instead of on the first request.
func Connect(ctx context.Context, co ConnOptions) (*mongo.Client, error) {
	if co.URI == "" {
		return nil, fmt.Errorf("mongodriver: connection uri required")
	}

	opts := options.Client().ApplyURI(co.URI)
	if co.AppName != "" {
		opts.SetAppName(co.AppName)
	}
	if co.ConnectTimeout != 0 {
		opts.SetConnectTimeout(co.ConnectTimeout)
	}
	if co.MaxPoolSize != 0 {
		opts.SetMaxPoolSize(co.MaxPoolSize)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: connect: %w", err)
	}

	if co.ConnectTimeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.ConnectTimeout)
		defer cancel()
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodriver: ping: %w", err)
	}
	return client, nil
}
