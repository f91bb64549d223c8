// Package main (in api-subfolder) provides launch of the review API with the job engine inside
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/auth"
	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/engine"
	"github.com/UnendingLoop/PhotoReview/internal/kafka"
	"github.com/UnendingLoop/PhotoReview/internal/metrics"
	"github.com/UnendingLoop/PhotoReview/internal/mwlogger"
	"github.com/UnendingLoop/PhotoReview/internal/qrsheet"
	"github.com/UnendingLoop/PhotoReview/internal/repository"
	"github.com/UnendingLoop/PhotoReview/internal/service"
	"github.com/UnendingLoop/PhotoReview/internal/storage"
	"github.com/UnendingLoop/PhotoReview/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel("info"); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе - там журнал решений
	dbConn, err := repository.ConnectWithRetries(ctx, appConfig, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("%v\nExiting the app...", err)
	}
	// накатываем миграцию
	if err := repository.MigrateWithRetries(ctx, dbConn.Master, "./migrations", 10, 15*time.Second); err != nil {
		log.Fatalf("Out of migration retries: %v\nExiting the app...", err)
	}
	repo := repository.NewPostgresDecisionRepo(dbConn)

	// подключиться к хранилищу, загрузки - с ретраями
	strg := storage.NewImgStorage(appConfig, 10*time.Second)
	uploader := storage.WithRetry(strg, storage.RetryPolicy{Attempts: 4, Delay: 500 * time.Millisecond})

	// кафка опциональна: без брокера решения только пишутся в базу
	var publisher service.DecisionPublisher = kafka.NoopPublisher{}
	var producer Producer
	if broker := appConfig.GetString("KAFKA_BROKER"); broker != "" {
		topic := appConfig.GetString("KAFKA_TOPIC")
		switch {
		case !kafka.WaitKafkaReady(ctx, broker, 30, 5*time.Second):
			log.Println("Kafka is unreachable, decisions will not be published")
		default:
			if err := kafka.InitKafkaTopics(ctx, broker, 10, 10*time.Second, topic); err != nil {
				log.Printf("Failed to init Kafka topics: %v", err)
			}
			p := wbfkafka.NewProducer([]string{broker}, topic)
			producer = p
			publisher = kafka.NewDecisionPublisher(p)
		}
	}

	// движок
	leaseTTL := envDuration(appConfig, "DRAW_LEASE_TTL", 0)
	spooler := blob.Spooler{
		Threshold: int64(envInt(appConfig, "SPOOL_THRESHOLD", int(blob.DefaultThreshold))),
		Dir:       appConfig.GetString("SPOOL_DIR"),
	}
	eng, err := engine.New(engine.Config{
		ResultsPerJob: envInt(appConfig, "RESULTS_PER_JOB", 1),
		CarouselSize:  envInt(appConfig, "CAROUSEL_SIZE", 10),
		MaxJobs:       envInt(appConfig, "MAX_JOBS", 0),
		LeaseTTL:      leaseTTL,
	}, uploader, spooler)
	if err != nil {
		log.Fatalf("Failed to init job engine: %v", err)
	}

	authenticator, err := auth.New(
		appConfig.GetString("AUTH_PASSWORD"),
		appConfig.GetString("AUTH_SECRET"),
		envDuration(appConfig, "TOKEN_TTL", 30*time.Minute),
	)
	if err != nil {
		log.Fatalf("Failed to init auth: %v", err)
	}

	// создаем экземпляр сервиса
	svc := service.NewReviewService(service.Deps{
		Engine:     eng,
		Repo:       repo,
		Publisher:  publisher,
		Slots:      strg,
		QR:         qrsheet.NewGenerator(strg, strg.Name()),
		Tokens:     authenticator,
		Metrics:    metrics.New(prometheus.DefaultRegisterer, eng),
		Spooler:    spooler,
		Categories: envList(appConfig, "CATEGORIES"),
	})
	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewReviewHandler(svc)
	// сетапим сервер
	mode := appConfig.GetString("GIN_MODE")
	router := ginext.New(mode)
	authMW := authenticator.Middleware()

	router.GET("/ping", handlers.SimplePinger)
	router.GET("/metrics", func(c *ginext.Context) {
		promhttp.Handler().ServeHTTP(c.Writer, c.Request)
	})
	router.POST("/token", handlers.IssueToken)
	router.GET("/categories", handlers.Categories)
	router.GET("/carousel", handlers.CarouselList)        // ссылки на элементы карусели
	router.GET("/carousel/:index", handlers.CarouselItem) // zip принятого результата и исходника

	router.POST("/upload", authMW, handlers.Upload)                 // прием фото
	router.POST("/slots", authMW, handlers.AllocateSlot)            // новый слот под QR-код
	router.GET("/qr", authMW, handlers.StartQRBatch)                // пачка слотов + лист с QR в фоне
	router.GET("/qr/progress", authMW, handlers.QRProgress)         // прогресс генерации
	router.GET("/qr/download", authMW, handlers.QRDownload)         // готовый pdf
	router.GET("/job", authMW, handlers.GetJob)                     // выдача воркеру
	router.POST("/job", authMW, handlers.SubmitJob)                 // результат от воркера
	router.GET("/results", authMW, handlers.ListResults)            // ждущие решения
	router.GET("/results/:id/:option", authMW, handlers.LoadResult) // один кандидат
	router.POST("/results/:id/confirm", authMW, handlers.Confirm)   // принять
	router.POST("/results/:id/reject", authMW, handlers.Reject)     // отклонить и вернуть в очередь
	router.GET("/decisions", authMW, handlers.Decisions)            // журнал решений

	srv := &http.Server{
		Addr:    ":" + appConfig.GetString("APP_PORT"),
		Handler: mwlogger.NewMWLogger(router),
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// фоновый цикл возвращает в очередь выдачи с истекшим lease
	if leaseTTL > 0 {
		go recoveryLoop(ctx, svc, leaseTTL/2)
	}

	// ждем отмены контекста для запуска грейсфул закрытия соединений
	<-ctx.Done()

	shutdown(srv, producer, dbConn)
	log.Println("Exiting app...")
}

func recoveryLoop(ctx context.Context, svc ReviewAPIService, every time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("Recovery loop crashed:", r)
		}
	}()

	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ReclaimExpired(context.Background())
		}
	}
}

func shutdown(srv *http.Server, prod Producer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Failed to shutdown HTTP-server correctly:", err)
	}

	// Closing Kafka connection:
	if prod != nil {
		if err := prod.Close(); err != nil {
			log.Println("Failed to close Kafka-writer:", err)
		}
		log.Println("Kafka-producer connection closed.")
	}

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
