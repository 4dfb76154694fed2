package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/petani/agrimarket/internal/config"
	"github.com/petani/agrimarket/internal/httpx"
	"github.com/petani/agrimarket/internal/inventory"
	kafkax "github.com/petani/agrimarket/internal/kafka"
	"github.com/petani/agrimarket/internal/listings"
	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/memstore"
	"github.com/petani/agrimarket/internal/notify"
	"github.com/petani/agrimarket/internal/orders"
	"github.com/petani/agrimarket/internal/pgstore"
	"github.com/petani/agrimarket/internal/postgres"
	"github.com/petani/agrimarket/internal/redisx"
	"github.com/petani/agrimarket/internal/stats"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		listingStore market.ListingStore
		orderStore   market.OrderStore
	)
	switch cfg.StoreBackend {
	case "memory":
		st := memstore.New()
		listingStore, orderStore = st, st
		log.Println("using in-memory store")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		listingStore = &pgstore.ListingRepo{DB: db}
		orderStore = &pgstore.OrderRepo{DB: db}
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicOrderLifecycle, 1024)
	prod.Start(ctx)

	coordinator := &inventory.Coordinator{Listings: listingStore, Orders: orderStore}
	orderSvc := &orders.Service{
		Store:       orderStore,
		Listings:    listingStore,
		Coordinator: coordinator,
		Producer:    prod,
		ServiceName: cfg.ServiceName,
		TraceID:     middleware.GetReqID,
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Listings: &listings.Service{Store: listingStore},
		Orders:   orderSvc,
		Stats:    &stats.Aggregator{Orders: orderStore, Redis: rdb},
		Notify:   &notify.Service{Redis: rdb, ServiceName: cfg.ServiceName},
		Redis:    rdb,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // stop accepting publishes, flush writer
	cancel()
	prod.WaitClosed()
}
