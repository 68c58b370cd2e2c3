// Package migrations holds the versioned MongoDB migrations. Every migration
// registers itself from an init function of its own file, named after its
// version.
package migrations

import (
	"context"
	"maps"
	"sort"

	"go.mongodb.org/mongo-driver/mongo"
)

// MigrationFunc applies or rolls back a migration on the database.
type MigrationFunc func(ctx context.Context, database *mongo.Database) error

// Migration represents a single migration
type Migration struct {
	Version int
	Name    string
	Up      MigrationFunc
	Down    MigrationFunc
}

var registry = make(map[int]Migration)

// AddMigration registers a migration. Registering the same version twice
// replaces the previous one.
func AddMigration(version int, name string, up, down MigrationFunc) {
	registry[version] = Migration{
		Version: version,
		Name:    name,
		Up:      up,
		Down:    down,
	}
}

// DelMigration deregisters a migration, used by tests.
func DelMigration(version int) { delete(registry, version) }

// SortedByVersionAsc returns all registered migrations, sorted by ascending version
func SortedByVersionAsc() []Migration {
	migs := make([]Migration, 0, len(registry))
	for _, mig := range registry {
		migs = append(migs, mig)
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs
}

// AsMap returns a copy of the registry indexed by version.
func AsMap() map[int]Migration {
	return maps.Clone(registry)
}
