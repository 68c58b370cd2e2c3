package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vibecoding/magazine-backend/api"
	"github.com/vibecoding/magazine-backend/billing"
	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/events"
	"github.com/vibecoding/magazine-backend/eventstore"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"github.com/vibecoding/magazine-backend/portone"
	"github.com/vibecoding/magazine-backend/scheduler"
	"github.com/vibecoding/magazine-backend/stripe"
	"github.com/vibecoding/magazine-backend/subscriptions"
	"go.vocdoni.io/dvote/log"
)

const (
	gatewayPortOne = "portone"
	gatewayStripe  = "stripe"
)

func main() {
	// a missing .env file is fine, the environment may be set already
	_ = godotenv.Load()
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.String("logLevel", "info", "log level (debug, info, warn, error)")
	flag.StringP("secret", "s", "", "JWT secret used to verify the user tokens")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "magazine", "The name of the MongoDB database")
	flag.String("gateway", gatewayPortOne, "payment gateway (portone or stripe)")
	flag.String("portone-secret", "", "PortOne V2 API secret")
	flag.String("portone-url", portone.DefaultBaseURL, "PortOne API endpoint")
	flag.String("stripe-secret", "", "Stripe API secret key")
	flag.String("stripe-webhook-secret", "", "Stripe webhook signing secret")
	flag.Duration("schedule-interval", scheduler.DefaultInterval, "how often the scheduled charges are polled (stripe)")
	flag.String("redis-addr", "", "Redis address to deduplicate webhooks, in memory if empty")
	flag.StringSlice("kafka-brokers", nil, "Kafka brokers to publish the payment events, disabled if empty")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("MAGAZINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	// the secret keeps the name used by the PortOne console
	if err := viper.BindEnv("portone-secret", "MAGAZINE_PORTONE_SECRET", "PORTONE_API_SECRET"); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()

	log.Init(viper.GetString("logLevel"), "stdout", nil)
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	if secret == "" {
		log.Fatal("secret is required")
	}
	mongoURL := viper.GetString("mongo-url")
	mongoDB := viper.GetString("mongo-db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// initialize the MongoDB database
	database, err := db.New(mongoURL, mongoDB)
	if err != nil {
		log.Fatalf("could not create the MongoDB database: %v", err)
	}
	defer database.Close()

	m := metrics.New()

	// webhook deduplication
	var processed eventstore.Store
	if redisAddr := viper.GetString("redis-addr"); redisAddr != "" {
		redisStore, err := eventstore.NewRedisStore(ctx, redisAddr, eventstore.DefaultTTL)
		if err != nil {
			log.Fatalf("could not connect to redis: %v", err)
		}
		defer func() { _ = redisStore.Close() }()
		processed = redisStore
		log.Infow("webhook deduplication in redis", "addr", redisAddr)
	} else {
		memoryStore := eventstore.NewMemoryStore(eventstore.DefaultTTL)
		defer memoryStore.Close()
		processed = memoryStore
	}

	// payment events
	var publisher events.Publisher = events.NopPublisher{}
	if brokers := viper.GetStringSlice("kafka-brokers"); len(brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(brokers)
		if err != nil {
			log.Fatalf("could not create the kafka publisher: %v", err)
		}
		publisher = kafka
		log.Infow("publishing payment events to kafka", "brokers", brokers)
	}
	defer func() { _ = publisher.Close() }()

	// payment gateway
	var (
		paymentGateway gateway.Gateway
		stripeWebhooks api.WebhookHandler
	)
	switch viper.GetString("gateway") {
	case gatewayPortOne:
		portoneSecret := viper.GetString("portone-secret")
		if portoneSecret == "" {
			log.Warnw("PortOne secret is not set, payment requests will fail")
		}
		paymentGateway = portone.New(&portone.Config{
			Secret:  portoneSecret,
			BaseURL: viper.GetString("portone-url"),
			Metrics: m,
		})
	case gatewayStripe:
		stripeConf := &stripe.Config{
			APIKey:        viper.GetString("stripe-secret"),
			WebhookSecret: viper.GetString("stripe-webhook-secret"),
		}
		if err := stripeConf.Validate(); err != nil {
			log.Fatalf("invalid stripe configuration: %v", err)
		}
		stripeClient := stripe.NewClient(stripeConf, database, m)
		paymentGateway = stripeClient
		stripeWebhooks = stripeClient
		// stripe has no scheduled charges, they are run by the service
		go scheduler.New(database, stripeClient, viper.GetDuration("schedule-interval"), m).Start(ctx)
	default:
		log.Fatalf("unknown payment gateway %q", viper.GetString("gateway"))
	}

	billingService, err := billing.New(&billing.Config{
		Gateway:   paymentGateway,
		DB:        database,
		Events:    processed,
		Publisher: publisher,
		Metrics:   m,
	})
	if err != nil {
		log.Fatalf("could not create the billing service: %v", err)
	}

	// create the local API server
	api.New(&api.Config{
		Host:           host,
		Port:           port,
		Secret:         secret,
		DB:             database,
		Billing:        billingService,
		Subscriptions:  subscriptions.New(&subscriptions.Config{DB: database}),
		StripeWebhooks: stripeWebhooks,
		Metrics:        m,
	}).Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port, "gateway", viper.GetString("gateway"))
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
