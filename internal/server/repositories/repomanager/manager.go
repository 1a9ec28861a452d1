// Package repomanager vends repository implementations bound to a database
// handle and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tokenauth/internal/dbx"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
