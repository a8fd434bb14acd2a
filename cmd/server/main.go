package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

func (v configVar[T]) bind() {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

var (
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 6,
		usage:        "Maximum number of participants in a room",
	}
	evictionGrace = configVar[time.Duration]{
		envKey:       "SERVER_EVICTION_GRACE",
		flagKey:      "eviction-grace",
		defaultValue: time.Minute,
		usage:        "How long an unused room is kept",
	}
	keepaliveInterval = configVar[time.Duration]{
		envKey:       "SERVER_KEEPALIVE_INTERVAL",
		flagKey:      "keepalive-interval",
		defaultValue: 15 * time.Second,
		usage:        "Interval between stream keepalives",
	}
	subscriberBuffer = configVar[int]{
		envKey:       "SERVER_SUBSCRIBER_BUFFER",
		flagKey:      "subscriber-buffer",
		defaultValue: 64,
		usage:        "Frames buffered per subscriber before frames are dropped",
	}
	brokerKind = configVar[string]{
		envKey:       "SERVER_BROKER",
		flagKey:      "broker",
		defaultValue: app.BrokerNone,
		usage:        "Cross-instance broker: none, redis or nats",
	}
	instanceID = configVar[string]{
		envKey:       "SERVER_INSTANCE_ID",
		flagKey:      "instance-id",
		defaultValue: "",
		usage:        "Instance id used to ignore own broker messages (random when empty)",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	natsURL = configVar[string]{
		envKey:       "NATS_URL",
		flagKey:      "nats-url",
		defaultValue: "nats://localhost:4222",
		usage:        "NATS server url",
	}
)

func loadAppConfig() *app.AppConfig {
	// a missing .env is fine, the environment and flags still apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, membersLimit.usage)
	pflag.Duration(evictionGrace.flagKey, evictionGrace.defaultValue, evictionGrace.usage)
	pflag.Duration(keepaliveInterval.flagKey, keepaliveInterval.defaultValue, keepaliveInterval.usage)
	pflag.Int(subscriberBuffer.flagKey, subscriberBuffer.defaultValue, subscriberBuffer.usage)
	pflag.String(brokerKind.flagKey, brokerKind.defaultValue, brokerKind.usage)
	pflag.String(instanceID.flagKey, instanceID.defaultValue, instanceID.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.String(natsURL.flagKey, natsURL.defaultValue, natsURL.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	host.bind()
	port.bind()
	logLevel.bind()
	membersLimit.bind()
	evictionGrace.bind()
	keepaliveInterval.bind()
	subscriberBuffer.bind()
	brokerKind.bind()
	instanceID.bind()
	redisHost.bind()
	redisPort.bind()
	redisPassword.bind()
	natsURL.bind()

	return &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		MembersLimit:      viper.GetInt(membersLimit.flagKey),
		EvictionGrace:     viper.GetDuration(evictionGrace.flagKey),
		KeepaliveInterval: viper.GetDuration(keepaliveInterval.flagKey),
		SubscriberBuffer:  viper.GetInt(subscriberBuffer.flagKey),
		Broker:            viper.GetString(brokerKind.flagKey),
		InstanceID:        viper.GetString(instanceID.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
		NatsURL:           viper.GetString(natsURL.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
