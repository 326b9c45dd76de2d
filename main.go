package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"newskeep/ai"
	"newskeep/api"
	"newskeep/archive"
	"newskeep/config"
	"newskeep/pipeline"
	"newskeep/profile"
	"newskeep/queue"
	"newskeep/recommend"
	"newskeep/search"
	"newskeep/seen"
	"newskeep/source"
	"newskeep/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer db.Close()

	producer, err := queue.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatalf("kafka producer init failed: %v", err)
	}
	defer producer.Close()

	embedder := ai.NewEmbeddingsProvider(cfg.CohereAPIKey, cfg.OpenAIAPIKey, cfg.EmbedModel)
	if embedder == nil {
		log.Println("⚠️ no embedding provider configured; articles will not be embedded")
	}
	enricher := ai.NewOpenAIEnricher(cfg.OpenAIAPIKey, cfg.ChatModel)
	if enricher == nil {
		log.Println("⚠️ OPENAI_API_KEY not set; summaries and keyword generation disabled")
	}

	seenFilter := initSeenFilter(cfg)
	archiver := initArchiver(ctx, cfg)
	searcher := initSearcher(cfg)

	ingestor := pipeline.NewIngestor(db, source.NewHTTPFetcher(source.DefaultPortal()), summarizer(enricher), embedder, producer, archiver)
	maintainer := profile.NewMaintainer(db)
	engine := recommend.NewEngine(db, searcher, recommenderEnricher(enricher), embedder, seenFilter, cfg)

	startConsumers(ctx, cfg, producer, ingestor, maintainer, engine)

	sweeper := pipeline.NewSweeper(db, producer)
	go sweeper.Run(ctx)

	controller := api.NewArticlesController(db, producer, interestDescriber(enricher), source.DefaultPortal().HostSuffix)
	router := api.NewRouter(controller)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("Starting API server on :%s", cfg.Port)
	log.Println("API endpoints available:")
	log.Println("  GET  /health")
	log.Println("  POST /api/links")
	log.Println("  GET  /api/links")
	log.Println("  GET  /api/links/:id")
	log.Println("  POST /api/links/:id/retry")
	log.Println("  POST /api/links/:id/convert")
	log.Println("  GET  /api/links/stats")
	log.Println("  POST /api/recommend/personal")
	log.Println("  POST /api/recommend/explore")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// startConsumers wires one consumer group worker per topic.
func startConsumers(ctx context.Context, cfg config.Config, producer *queue.Producer,
	ingestor *pipeline.Ingestor, maintainer *profile.Maintainer, engine *recommend.Engine) {

	consumers := []queue.ConsumerConfig{
		{
			Topic: queue.TopicIngest,
			Handler: &queue.TypedMessageHandler[queue.IngestJob]{
				Process: func(ctx context.Context, job *queue.IngestJob) error {
					return ingestor.Process(ctx, job.ArticleID)
				},
			},
		},
		{
			Topic: queue.TopicProfileRefresh,
			Handler: &queue.TypedMessageHandler[queue.UserJob]{
				Process: func(ctx context.Context, job *queue.UserJob) error {
					return maintainer.Refresh(ctx, job.UserID)
				},
			},
		},
		{
			Topic: queue.TopicPersonalRecommend,
			Handler: &queue.TypedMessageHandler[queue.UserJob]{
				Process: func(ctx context.Context, job *queue.UserJob) error {
					_, err := engine.RecommendPersonal(ctx, job.UserID)
					return err
				},
			},
		},
		{
			Topic: queue.TopicExploreRecommend,
			Handler: &queue.TypedMessageHandler[queue.UserJob]{
				Process: func(ctx context.Context, job *queue.UserJob) error {
					_, err := engine.RecommendExplore(ctx, job.UserID)
					return err
				},
			},
		},
	}

	for _, c := range consumers {
		c.Brokers = cfg.KafkaBrokers
		c.GroupID = cfg.KafkaGroupID
		consumer, err := queue.NewConsumer(c)
		if err != nil {
			log.Fatalf("consumer init for %s failed: %v", c.Topic, err)
		}
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("consumer start for %s failed: %v", c.Topic, err)
		}
	}
}

// initSeenFilter returns nil when Redis is not configured; the recommenders
// then skip the seen-URL fast path.
func initSeenFilter(cfg config.Config) seen.Filter {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set; seen-URL filter disabled")
		return nil
	}
	filter, err := seen.NewRedisBloom(seen.BloomConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("⚠️ seen-URL filter unavailable: %v", err)
		return nil
	}
	return filter
}

// initArchiver returns nil when no bucket is configured; archival is then
// skipped entirely.
func initArchiver(ctx context.Context, cfg config.Config) pipeline.Archiver {
	if cfg.S3Bucket == "" {
		log.Println("S3_BUCKET not set; article archival disabled")
		return nil
	}
	archiver, err := archive.NewS3Archiver(ctx, archive.S3Config{
		Bucket: cfg.S3Bucket,
		Region: cfg.S3Region,
		Prefix: cfg.S3Prefix,
	})
	if err != nil {
		log.Printf("⚠️ S3 archiver unavailable: %v", err)
		return nil
	}
	return archiver
}

// initSearcher picks the candidate search backend: the keyword search API, or
// an RSS search feed as a keyless fallback.
func initSearcher(cfg config.Config) recommend.Searcher {
	if cfg.SearchProvider == "rss" || cfg.SearchClientID == "" {
		return search.NewRSSClient(cfg.SearchAPIURL)
	}
	return search.NewAPIClient(cfg.SearchAPIURL, cfg.SearchClientID, cfg.SearchClientSecret)
}

// summarizer adapts the nil-ability of the enricher: a typed nil must become
// a true nil interface so the pipeline can detect it.
func summarizer(e *ai.OpenAIEnricher) pipeline.Summarizer {
	if e == nil {
		return nil
	}
	return e
}

func recommenderEnricher(e *ai.OpenAIEnricher) recommend.Enricher {
	if e == nil {
		return nil
	}
	return e
}

func interestDescriber(e *ai.OpenAIEnricher) api.InterestDescriber {
	if e == nil {
		return nil
	}
	return e
}
