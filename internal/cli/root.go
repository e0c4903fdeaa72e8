package cli

import (
	"database/sql"
	"fmt"
	"os"
	"slices"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath  string
	Format  string
	Verbose bool
}

var ValidFormats = []string{"text", "json", "yaml"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "progressctl",
		Short: "Inspect and maintain workshop navigation progress",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultDB := os.Getenv("DB_PATH")
	if defaultDB == "" {
		defaultDB = "progress.db"
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", defaultDB, "path to the SQLite database (env DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

// env is the storage stack a single command runs against.
type env struct {
	sqlDB          *sql.DB
	queue          *db.DBQueue
	logger         *zap.Logger
	userRepo       *db.UserRepository
	progressRepo   *db.ProgressRepository
	assessmentRepo *db.AssessmentRepository
}

// newLogger logs to stderr with --verbose and discards otherwise, so
// command output stays parseable.
func newLogger(opts *RootOptions) (*zap.Logger, error) {
	if !opts.Verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func openEnv(opts *RootOptions) (*env, error) {
	logger, err := newLogger(opts)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.Open(opts.DBPath)
	if err != nil {
		return nil, err
	}

	queue := db.NewDBQueue(sqlDB, logger)
	return &env{
		sqlDB:          sqlDB,
		queue:          queue,
		logger:         logger,
		userRepo:       db.NewUserRepository(queue),
		progressRepo:   db.NewProgressRepository(queue),
		assessmentRepo: db.NewAssessmentRepository(queue),
	}, nil
}

func (e *env) userManager() *services.UserManager {
	return services.NewUserManager(e.userRepo, e.progressRepo, e.assessmentRepo, e.logger)
}

func (e *env) Close() {
	e.queue.Close()
	e.sqlDB.Close()
	_ = e.logger.Sync()
}
