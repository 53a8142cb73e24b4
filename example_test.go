package goAuthClient_test

import (
	"context"
	"errors"
	"fmt"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/backend/backendtest"
	"github.com/MrEthical07/goAuthClient/store"
)

func Example() {
	srv, err := backendtest.New()
	if err != nil {
		panic(err)
	}
	defer srv.Close()
	if _, err := srv.AddUser("alice@example.com", "correct-horse", "admin"); err != nil {
		panic(err)
	}

	cfg := goAuthClient.DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	client, err := backend.NewClient(cfg.Backend)
	if err != nil {
		panic(err)
	}
	m, err := goAuthClient.New().
		WithConfig(cfg).
		WithBackend(client).
		WithStore(store.NewMemory(store.DefaultKeys())).
		Build()
	if err != nil {
		panic(err)
	}
	defer m.Close()

	ctx := context.Background()
	snap, _ := m.Hydrate(ctx)
	fmt.Println(snap.Phase)

	nav, err := m.Login(ctx, goAuthClient.Credentials{Identifier: "alice@example.com", Secret: "correct-horse"})
	if err != nil {
		panic(err)
	}
	fmt.Println(nav.Path, m.Snapshot().Phase, m.HasRole("admin"))

	nav, _ = m.Logout(ctx)
	fmt.Println(nav.Path, m.Snapshot().Phase)
	// Output:
	// unauthenticated
	// /dashboard authenticated true
	// / unauthenticated
}

func ExampleErrorMessage() {
	backendErr := &goAuthClient.Error{Kind: goAuthClient.ErrValidation, Status: 422, Message: "password is too short"}
	wrapped := fmt.Errorf("register: %w", backendErr)

	fmt.Println(errors.Is(wrapped, goAuthClient.ErrValidation))
	fmt.Println(goAuthClient.ErrorMessage(wrapped))
	fmt.Println(goAuthClient.ErrorMessage(goAuthClient.ErrAuthentication))
	// Output:
	// true
	// password is too short
	// Invalid credentials.
}
