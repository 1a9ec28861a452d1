package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/tokenauth/internal/common"
)

type credentialsCall func(ctx context.Context, email, password string) error

func (a *App) authenticate(ctx context.Context, call credentialsCall) {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	password, err := GetPassword(a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := call(ctx, email, string(password)); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	a.email = email
	fmt.Fprintln(a.out, "Success!")
}

func (a *App) Register(ctx context.Context) {
	a.authenticate(ctx, a.client.Register)
}

func (a *App) Login(ctx context.Context) {
	a.authenticate(ctx, a.client.Login)
}

func (a *App) Refresh(ctx context.Context) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.client.Refresh(ctx); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintln(a.out, "Tokens rotated")
}

func (a *App) Me(ctx context.Context) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	me, err := a.client.Me(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	fmt.Fprintf(a.out, "id: %s\nemail: %s\n", me.UserID, me.Email)
	keys := make([]string, 0, len(me.Claims))
	for k := range me.Claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "claim %s=%s\n", k, me.Claims[k])
	}
}

func (a *App) Tokens() {
	access, refresh := a.client.Tokens()
	if access == "" {
		fmt.Fprintln(a.out, "error: not logged in")
		return
	}
	fmt.Fprintf(a.out, "access: %s\nrefresh: %s\n", access, refresh)
}
