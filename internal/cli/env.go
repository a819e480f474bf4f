package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/revkit/internal/config"
	"github.com/roach88/revkit/internal/events"
	"github.com/roach88/revkit/internal/revision"
	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/store"
)

// env is what a command needs to work on records: configuration, store,
// registered types and event sinks.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *schema.Registry
	sinks    revision.EventSink
	author   string

	closers []func() error
}

// openEnv loads configuration, opens the store and registers the
// configured entity types. Callers must call close.
func (o *RootOptions) openEnv(cmd *cobra.Command, f *OutputFormatter) (*env, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if o.Database != "" {
		cfg.Database.Driver = config.DefaultDriver
		cfg.Database.Path = o.Database
	}
	if len(o.Schemas) > 0 {
		cfg.Schema.Paths = o.Schemas
	}

	e := &env{cfg: cfg, logger: o.logger(cmd, cfg.Log), author: o.author()}

	e.registry, err = schema.LoadRegistry(cfg.Schema.Paths...)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, err)
	}

	driver, dsn := cfg.Database.DataSource()
	e.logger.Debug("opening database", "driver", driver)
	e.store, err = store.Open(driver, dsn, cfg.Database.MaxConns)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	e.closers = append(e.closers, e.store.Close)

	var sinks []revision.EventSink
	if cfg.Events.Log {
		sinks = append(sinks, events.NewSlogSink(e.logger, slog.LevelInfo))
	}
	if cfg.Events.Redis.Enabled() {
		client := events.NewRedisClient(cfg.Events.Redis)
		e.closers = append(e.closers, client.Close)
		if err := events.Ping(cmd.Context(), client); err != nil {
			e.close()
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, err)
		}
		sinks = append(sinks, events.NewRedisSink(client, cfg.Events.Redis.Stream, cfg.Events.Redis.MaxLen, e.logger))
	}
	e.sinks = events.NewMulti(sinks...)
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close failed", "error", err)
		}
	}
}

// collection returns the collection of typ configured from the engine
// settings. The CLI user is the collection's current user.
func (e *env) collection(typ *schema.Type) *revision.Collection {
	return revision.NewCollection(e.store, typ, revision.Options{
		Logger:        e.logger,
		Events:        e.sinks,
		Users:         revision.StaticUser{ID: e.author, Name: e.author},
		Simulation:    e.cfg.Engine.Simulation,
		DeletionDelay: time.Duration(e.cfg.Engine.DeletionDelay),
	})
}

// collectionOf returns the collection of the named type.
func (e *env) collectionOf(name string) (*revision.Collection, error) {
	typ, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return e.collection(typ), nil
}

// collectionFor returns the collection record id belongs to.
func (e *env) collectionFor(ctx context.Context, id int64) (*revision.Collection, error) {
	row, err := e.store.FetchRow(ctx, "records", map[string]any{"id": id})
	if store.IsNotFound(err) {
		return nil, &revision.Error{Code: revision.ErrCodeNoCurrentRevision, Message: "record does not exist", RecordID: id}
	}
	if err != nil {
		return nil, err
	}
	return e.collectionOf(row.String("record_type"))
}

func (o *RootOptions) logger(cmd *cobra.Command, cfg config.LogConfig) *slog.Logger {
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), hopts))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), hopts))
}

func (o *RootOptions) author() string {
	if o.Author != "" {
		return o.Author
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "revctl"
}

// parseAssignments parses key=value arguments. Values are YAML scalars
// or flow collections, so priority=3 is an integer and tags=[a,b] a list.
// An empty value clears the field.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: want key=value", arg)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("field %q assigned twice", key)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", arg)
	}
	return id, nil
}
