package neomap

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different
// implementations or mocking in tests.
type DBRunner interface {
	// Run executes a given Cypher query with parameters and returns a
	// fully-buffered result.
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Config holds the connection settings for a Neo4j database.
type Config struct {
	// URI is the connection URI of the Neo4j instance,
	// e.g. "neo4j://localhost:7687".
	URI string `validate:"required,uri"`
	// Username and Password authenticate against the instance.
	Username string `validate:"required"`
	Password string `validate:"required"`
	// Database is the name of the database queries run against.
	Database string `validate:"required"`
}

// DefaultConfig returns the settings of a stock local installation.
func DefaultConfig() Config {
	return Config{
		URI:      "neo4j://localhost:7687",
		Username: "neo4j",
		Password: "neo4j",
		Database: "neo4j",
	}
}

// Validate reports whether the configuration is complete enough to open a
// connection.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Executor is a concrete implementation of the DBRunner interface backed by
// the official Neo4j Go driver. It manages the driver instance and the
// target database name.
type Executor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewExecutor creates and initializes a new Executor from a validated
// configuration.
//
// Parameters:
//   - cfg: The connection settings; see Config and DefaultConfig.
//
// Returns:
//
//	A pointer to the newly created Executor or an error if the configuration
//	is invalid or the driver creation fails.
func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Executor{Driver: driver, DBName: cfg.Database}, nil
}

// Verify checks the connectivity to the Neo4j database.
//
// Returns:
//
//	An error if the connection cannot be established.
func (e *Executor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Run executes a Cypher query using the modern ExecuteQuery function, which
// handles session and transaction management automatically for robust and
// simple execution. This function is suitable for both read and write
// operations.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an
//	error if the execution fails.
func (e *Executor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)

	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}

	return result, nil
}

// Close releases the underlying driver and its connection pool.
func (e *Executor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}
