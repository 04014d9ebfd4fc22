package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"venmux/internal/api"
	"venmux/internal/backends"
	"venmux/internal/manager"
	"venmux/internal/provider/mock"
	"venmux/internal/pub"
	"venmux/internal/types"
)

func main() {
	// Load environment variables
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	err := godotenv.Load(envFile)
	if err != nil {
		log.Info("The .env file not found.")
	}

	cfg, err := types.LoadServiceConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyEnvOverrides(&cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backend stores
	vendorStore, err := backends.VendorBackendFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize vendor store: %v", err)
	}
	convLog, err := backends.ConversationBackendFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize conversation log: %v", err)
	}

	// Optional lifecycle event publishing
	var notifier manager.Notifier
	if cfg.EventTopicARN != "" {
		snsClient, err := snsClientFromEnv(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize SNS client: %v", err)
		}
		notifier = pub.NewEventNotifier(pub.NewSNS(snsClient), cfg.EventTopicARN, cfg.EventFilter)
	}

	// The real messaging protocol lives behind the provider boundary; the
	// binary currently ships with the in-process session simulator.
	hub := mock.NewAutoPairHub()

	mgr := manager.New(cfg, vendorStore, convLog, hub.Factory(), notifier)
	if err := mgr.Restore(ctx); err != nil {
		log.WithError(err).Warn("vendor restore failed; starting empty")
	}
	go mgr.Run(ctx)

	stopCh, doneCh := api.RunServerInterruptible(cfg.HTTPPort, mgr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
		close(stopCh)
		<-doneCh
	case err := <-doneCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}

// applyEnvOverrides lets the environment win over the config file for the
// handful of knobs that change between deployments.
func applyEnvOverrides(cfg *types.ServiceConfig) {
	setIntFromEnv(&cfg.HTTPPort, "HTTP_PORT")
	setIntFromEnv(&cfg.PortRangeStart, "PORT_RANGE_START")
	setIntFromEnv(&cfg.PortRangeEnd, "PORT_RANGE_END")
	setIntFromEnv(&cfg.QRRefreshSeconds, "QR_REFRESH_SECONDS")
	setIntFromEnv(&cfg.RetrySweepSeconds, "RETRY_SWEEP_SECONDS")
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EVENT_TOPIC_ARN"); v != "" {
		cfg.EventTopicARN = v
	}
	if v := os.Getenv("EVENT_FILTER"); v != "" {
		cfg.EventFilter = v
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
}

func setIntFromEnv(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	*dst = n
}

// snsClientFromEnv builds the SNS client, honoring a local endpoint override
// the same way the store backends do.
func snsClientFromEnv(ctx context.Context) (*sns.Client, error) {
	var snsEndpoint *string
	se := os.Getenv("SNS_ENDPOINT")
	if se != "" {
		snsEndpoint = aws.String(se)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if snsEndpoint != nil {
			o.BaseEndpoint = snsEndpoint
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			credProvider := credentials.NewStaticCredentialsProvider("test", "test", "")
			o.Credentials = credProvider
		}
	})
	return snsClient, nil
}
