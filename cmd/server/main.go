package main // Entry point package

import (
	"context" // context for scheduled job runs
	"log"     // Logging library
	"time"    // wall clock passed to the sweeps

	"github.com/go-co-op/gocron/v2" // external scheduler driving the sweeps
	"github.com/joho/godotenv"      // .env loading for local development
	"github.com/labstack/echo/v4"   // Echo web framework

	"github.com/tickethub/seat-inventory/internal/config"     // Internal config loader
	"github.com/tickethub/seat-inventory/internal/database"   // MySQL connector
	"github.com/tickethub/seat-inventory/internal/handler"    // HTTP handlers
	"github.com/tickethub/seat-inventory/internal/queue"      // broker consumer
	"github.com/tickethub/seat-inventory/internal/repository" // data access
	"github.com/tickethub/seat-inventory/internal/router"     // Internal router setup
	"github.com/tickethub/seat-inventory/internal/service"    // inventory core
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient() // nil when redis is unreachable; reads fall back to the DB
	if rdb == nil {
		log.Println("redis unavailable, availability cache disabled")
	}

	seatRepo := repository.NewSeatRepo(db)
	entryRepo := repository.NewLockEntryRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	jobRepo := repository.NewTicketJobRepo(db)
	ticketRepo := repository.NewTicketRepo(db)
	waitlistRepo := repository.NewWaitlistRepo(db)

	locks := service.NewLockService(db, seatRepo, entryRepo, rdb, cfg.AvailabilityTTL, cfg.DefaultLockTTL, cfg.MaxLockTTL)
	bookings := service.NewBookingService(db, seatRepo, entryRepo, bookingRepo, jobRepo, rdb, cfg.JobMaxAttempts)
	tickets := service.NewTicketService(db, ticketRepo, jobRepo, bookingRepo, cfg.JobBaseDelay, cfg.MultiEntryMax)
	reclaimer := service.NewReclaimer(db, seatRepo, entryRepo, rdb)

	// The core owns no timers: the reclaim sweep and the ticket job pass
	// are pure functions of `now`, driven here by the scheduler.
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepInterval)
			defer cancel()
			if _, err := reclaimer.ReclaimExpired(ctx, time.Now().UTC()); err != nil {
				log.Printf("reclaim sweep: %v", err)
			}
		}),
	); err != nil {
		log.Fatalf("scheduler: reclaim job: %v", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.JobInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.JobInterval)
			defer cancel()
			if _, err := tickets.ProcessDueJobs(ctx, time.Now().UTC()); err != nil {
				log.Printf("ticket jobs: %v", err)
			}
		}),
	); err != nil {
		log.Fatalf("scheduler: ticket job: %v", err)
	}
	sched.Start()

	// Waitlist notifier; reconnects forever and never takes the server down.
	go func() {
		if err := queue.StartWaitlistConsumer(waitlistRepo); err != nil {
			log.Printf("waitlist consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterInventory(e,
		handler.NewLockHandler(locks),
		handler.NewBookingHandler(bookings),
		handler.NewTicketHandler(tickets),
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
