// Package cli is an interactive shell over the Identity service: register,
// login, refresh and me.
package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/client/client"
	"github.com/dmitrijs2005/tokenauth/internal/client/config"
	pb "github.com/dmitrijs2005/tokenauth/internal/proto"
)

// IdentityClient is the subset of client.GRPCClient the shell drives.
type IdentityClient interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) error
	Refresh(ctx context.Context) error
	Me(ctx context.Context) (*pb.MeResponse, error)
	Tokens() (string, string)
	Close() error
}

type App struct {
	client  IdentityClient
	timeout time.Duration
	email   string
	reader  *bufio.Reader
	out     io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return newApp(apiClient, c.RequestTimeout, os.Stdin, os.Stdout), nil
}

func newApp(c IdentityClient, timeout time.Duration, in io.Reader, out io.Writer) *App {
	return &App{client: c, timeout: timeout, reader: bufio.NewReader(in), out: out}
}

func (a *App) Run(ctx context.Context) {
	defer a.client.Close()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	access, _ := a.client.Tokens()
	return access != ""
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
