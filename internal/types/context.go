package types

type contextKey string

// DBKey holds the *repository.DB opened for a CLI command.
const DBKey contextKey = "db"
