//go:build integration
// +build integration

package neomap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupNeo4j starts a disposable Neo4j container and returns a connected
// executor. Tests are skipped when Docker is unavailable.
func setupNeo4j(t *testing.T, ctx context.Context) (*Executor, func()) {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	if err := provider.Health(ctx); err != nil {
		t.Skip("Docker not running, skipping integration test")
	}

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "none", // Disable authentication for testing
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForLog("Started."),
		).WithDeadline(120 * time.Second), // Neo4j can take a while to start
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Neo4j container: %v", err)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	// Auth is disabled in the container; credentials only satisfy config
	// validation.
	cfg := Config{
		URI:      fmt.Sprintf("bolt://%s:%s", host, port.Port()),
		Username: "neo4j",
		Password: "ignored",
		Database: "neo4j",
	}
	exec, err := NewExecutor(cfg)
	require.NoError(t, err)
	require.NoError(t, exec.Verify(ctx))

	cleanup := func() {
		_ = exec.Close(ctx)
		_ = container.Terminate(ctx)
	}
	return exec, cleanup
}

func newIntegrationSession(t *testing.T, exec *Executor) *Session {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewSession(exec, newTestMeta(t), logger)
}

// TestIntegration_RoundTrip drives the full lifecycle against a live
// database: create nodes, relate them, reload the graph through a fresh
// identity map, and delete.
func TestIntegration_RoundTrip(t *testing.T) {
	ctx := context.Background()
	exec, cleanup := setupNeo4j(t, ctx)
	defer cleanup()

	s := newIntegrationSession(t, exec)

	keanu := &actor{Name: "Keanu Reeves", Born: 1964}
	matrix := &movie{Title: "The Matrix"}
	lana := &director{Name: "Lana Wachowski"}
	require.NoError(t, s.CreateNodes(ctx, keanu, matrix, lana))
	require.NotNil(t, keanu.ID)
	require.NotNil(t, matrix.ID)
	require.NotNil(t, lana.ID)

	relID, err := s.Relate(ctx, keanu, matrix, "ACTS_IN", map[string]any{"character": "Neo"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, relID, int64(0))
	assert.True(t, s.Context().HasRelationship(*keanu.ID, "ACTS_IN", *matrix.ID))

	_, err = s.Relate(ctx, lana, matrix, "DIRECTED", nil)
	require.NoError(t, err)

	// Reload through a cleared identity map, two hops out from the actor so
	// the movie arrives with its director.
	s.Clear()
	loaded, err := LoadOne[actor](ctx, s, *keanu.ID, 2)
	require.NoError(t, err)
	assert.NotSame(t, keanu, loaded)
	assert.Equal(t, "Keanu Reeves", loaded.Name)
	assert.Equal(t, int64(1964), loaded.Born)

	require.Len(t, loaded.Roles, 1)
	part := loaded.Roles[0]
	assert.Equal(t, "Neo", part.Character)
	assert.Same(t, loaded, part.Actor)
	require.NotNil(t, part.Movie)
	assert.Equal(t, "The Matrix", part.Movie.Title)
	require.NotNil(t, part.Movie.Director)
	assert.Equal(t, "Lana Wachowski", part.Movie.Director.Name)
	assert.Contains(t, part.Movie.Cast, part)

	// Loads within the same session keep handing back the same objects.
	movies, err := LoadAll[movie](ctx, s, 0)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Same(t, part.Movie, movies[0])

	parts, err := LoadAll[role](ctx, s, 1)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Same(t, part, parts[0])

	// Deleting the movie detaches its relationships with it.
	require.NoError(t, s.Delete(ctx, part.Movie))
	_, err = LoadOne[movie](ctx, s, *movies[0].ID, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	s.Clear()
	parts, err = LoadAll[role](ctx, s, 1)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

// TestIntegration_CustomQuery hydrates the result of a caller-built query.
func TestIntegration_CustomQuery(t *testing.T) {
	ctx := context.Background()
	exec, cleanup := setupNeo4j(t, ctx)
	defer cleanup()

	s := newIntegrationSession(t, exec)

	keanu := &actor{Name: "Keanu Reeves", Born: 1964}
	reeves := &actor{Name: "Carrie-Anne Moss", Born: 1967}
	matrix := &movie{Title: "The Matrix"}
	require.NoError(t, s.CreateNodes(ctx, keanu, reeves, matrix))
	_, err := s.Relate(ctx, keanu, matrix, "ACTS_IN", map[string]any{"character": "Neo"})
	require.NoError(t, err)
	_, err = s.Relate(ctx, reeves, matrix, "ACTS_IN", map[string]any{"character": "Trinity"})
	require.NoError(t, err)

	s.Clear()
	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("a", "Actor").WithProperties(map[string]interface{}{"name": "Keanu Reeves"})).
		Match(
			gocypher.NRef("a"),
			gocypher.R("r", "ACTS_IN").To(),
			gocypher.N("m", "Movie"),
		).
		Return("a", "r", "m")

	actors, err := LoadWith[actor](ctx, s, qb)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, "Keanu Reeves", actors[0].Name)
	require.Len(t, actors[0].Roles, 1)
	assert.Equal(t, "Neo", actors[0].Roles[0].Character)
	assert.Equal(t, "The Matrix", actors[0].Roles[0].Movie.Title)
}
