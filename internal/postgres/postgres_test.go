package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{User: "trip", Password: "p@ss/word", Name: "tripslot", Host: "db", Port: 5432, SSLMode: "disable"}
	assert.Equal(t, "postgres://trip:p%40ss%2Fword@db:5432/tripslot?sslmode=disable", cfg.DSN())
}
