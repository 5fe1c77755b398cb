package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/config"
	"quiz-ranking-service/internal/infra/memory"
	"quiz-ranking-service/internal/infra/postgres"
	infraredis "quiz-ranking-service/internal/infra/redis"
	"quiz-ranking-service/internal/logger"
	transport "quiz-ranking-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores groups the repositories selected by configuration.
type stores struct {
	quizzes  app.QuizRepository
	results  app.ResultRepository
	ranking  app.RankingStore
	sessions app.SessionRepository
	bus      *infraredis.NoticeBus
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores picks memory by default, Postgres for the quiz catalog when configured, and Redis
// for results, rankings, session markers, operator notices and the quiz cache when configured.
func openStores(ctx context.Context, cfg config.Config, log *logger.Logger) (*stores, error) {
	s := &stores{
		quizzes:  memory.NewQuizRepository(),
		results:  memory.NewResultRepository(),
		ranking:  memory.NewRankingStore(),
		sessions: memory.NewSessionStore(),
	}

	var backing app.QuizRepository
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		backing = postgres.NewQuizRepository(pool)
		s.quizzes = backing
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,

			// honour per-call deadlines such as the session marker timeout
			ContextTimeoutEnabled: true,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			s.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })

		s.quizzes = infraredis.NewQuizRepository(client, backing, config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute))
		s.results = infraredis.NewResultRepository(client)
		s.ranking = infraredis.NewRankingStore(client)
		s.sessions = infraredis.NewSessionStore(client, config.Duration(cfg.Quiz.SessionTTL, 30*time.Minute))
		if cfg.Redis.Channel != "" {
			s.bus = infraredis.NewNoticeBus(client, cfg.Redis.Channel, log)
		}
	}
	return s, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var bus transport.OperatorBus
	if st.bus != nil {
		bus = st.bus
	}
	hub := transport.NewHub(cfg.Operator.ID, bus, log)

	ranking := app.NewRankingAggregator(st.ranking)
	service := app.NewQuizService(app.Deps{
		Catalog:  app.NewQuizCatalog(st.quizzes),
		Results:  app.NewResultStore(st.results, ranking),
		Ranking:  ranking,
		Sessions: st.sessions,
		Renderer: hub,
		Logger:   log,
	}, app.Options{
		QuestionTimeout: config.Duration(cfg.Quiz.QuestionTimeout, app.DefaultQuestionTimeout),
		OperatorID:      cfg.Operator.ID,
	})
	defer service.Close()

	if cfg.Operator.ID == "" {
		log.Warn("no operator configured; quizzes can only be created with create-quiz")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(transport.NewWSHandler(service, hub, cfg.Operator.Token, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if st.bus != nil {
		if err := st.bus.StartForwarder(gctx, func(n app.OperatorNotice) {
			if err := hub.DeliverOperatorNotice(n); err != nil {
				log.Debug("operator notice not delivered here", "result_id", n.Result.ID, "error", err)
			}
		}); err != nil {
			return err
		}
	}
	g.Go(func() error {
		log.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
