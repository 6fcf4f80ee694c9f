package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaDeclaresUniqueConstraints(t *testing.T) {
	assert.Contains(t, Schema, "users_username_key UNIQUE (username)")
	assert.Contains(t, Schema, "users_email_key UNIQUE (email)")
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS audit")
}

func TestApplySchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, ApplySchema(context.Background(), mock))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnError(errors.New("permission denied"))
	err = ApplySchema(context.Background(), mock)
	assert.ErrorContains(t, err, "apply schema")

	assert.NoError(t, mock.ExpectationsWereMet())
}
