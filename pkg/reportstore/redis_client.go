package reportstore

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// universalOptions turns an address into client options for a single node,
// a cluster or a sentinel setup.
//
//	127.0.0.1:6379/2                      single node, db 2
//	127.0.0.1/2                           same, default port 6379
//	10.0.0.1:7001,10.0.0.2:7002           cluster
//	mymaster,10.0.0.1:26379,10.0.0.2:26379 sentinel
func universalOptions(addr string, opts Options) (*redis.UniversalOptions, error) {
	uri := "redis://" + addr
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address format: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid redis address %q: no host", addr)
	}

	// ParseURL rejects multiple hosts, so only the path and user part go through it
	first := strings.Split(u.Host, ",")[0]
	single := *u
	single.Host = withDefaultPort(first, "6379")
	opt, err := redis.ParseURL(single.String())
	if err != nil {
		return nil, fmt.Errorf("could not parse redis URL: %w", err)
	}

	if opt.Password == "" {
		opt.Password = os.Getenv("REDIS_PASSWORD")
	}
	if opt.Password == "" {
		opt.Password = os.Getenv("META_PASSWORD")
	}

	universal := &redis.UniversalOptions{
		Addrs:        strings.Split(u.Host, ","),
		DB:           opt.DB,
		Username:     opt.Username,
		Password:     opt.Password,
		MaxRetries:   opts.Retries,
		PoolSize:     10,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	if universal.MaxRetries == 0 {
		universal.MaxRetries = -1
	}

	// Convention: masterName,sentinel1:port,sentinel2:port...
	hosts := universal.Addrs
	if len(hosts) > 1 && !strings.Contains(hosts[0], ":") {
		universal.MasterName = hosts[0]
		hosts = hosts[1:]
	}
	port := "6379"
	if universal.MasterName != "" {
		port = "26379"
	}
	universal.Addrs = make([]string, len(hosts))
	for i, h := range hosts {
		universal.Addrs[i] = withDefaultPort(h, port)
	}
	return universal, nil
}

// withDefaultPort appends port to a host that has none.
func withDefaultPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}

func newUniversalRedisClient(addr string, opts Options) (redis.UniversalClient, error) {
	universal, err := universalOptions(addr, opts)
	if err != nil {
		return nil, err
	}
	switch {
	case universal.MasterName != "":
		logger.Infof("Connecting to Redis in Sentinel mode. Master: %s, Sentinels: %v", universal.MasterName, universal.Addrs)
	case len(universal.Addrs) > 1:
		logger.Infof("Connecting to Redis in Cluster mode. Nodes: %v", universal.Addrs)
	default:
		logger.Infof("Connecting to Redis in Single-node mode. Address: %s", universal.Addrs[0])
	}

	rdb := redis.NewUniversalClient(universal)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	logger.Info("Successfully connected to Redis.")
	return rdb, nil
}
