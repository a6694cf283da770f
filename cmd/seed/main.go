package main

import (
	"circles/auth"
	"circles/domain"
	"circles/errors"
	"circles/internal"
	"circles/repositories"
	"context"
	goerrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// SeedFile lists the accounts to create.
//
//	[[users]]
//	username = "alice"
//	name = "Alice Martin"
type SeedFile struct {
	Users []SeedUser `toml:"users"`
}

type SeedUser struct {
	Username     string `toml:"username"`
	Name         string `toml:"name"`
	ProfileImage string `toml:"profile_image"`
}

type seeded struct {
	user    domain.User
	created bool
	token   string
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run creates the users of the seed file in the configured store and prints a token for each.
func run() (int, error) {
	file := flag.String("file", "seed.toml", "TOML file listing the users")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !goerrors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("failed to load .env: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	seed, err := readSeedFile(*file)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	stores, err := internal.OpenStores(config.StoreDriver, config.BadgerFilepath, config.SQLiteFilepath, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = stores.Close() }()

	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	results, err := seedUsers(context.Background(), stores.Users, tokens, seed.Users)
	if err != nil {
		return exitRuntime, err
	}
	render(os.Stdout, results)
	return exitOK, nil
}

func readSeedFile(path string) (SeedFile, error) {
	var seed SeedFile
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("cannot read seed file: %w", err)
	}
	if err := toml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("cannot parse seed file: %w", err)
	}
	if len(seed.Users) == 0 {
		return seed, fmt.Errorf("seed file %s lists no users", path)
	}
	return seed, nil
}

// seedUsers is idempotent: existing usernames are looked up instead of created.
func seedUsers(ctx context.Context, users repositories.IUserRepository, tokens *auth.TokenManager, seed []SeedUser) ([]seeded, error) {
	results := make([]seeded, 0, len(seed))
	for _, s := range seed {
		user, err := users.CreateUser(ctx, domain.User{Username: s.Username, Name: s.Name, ProfileImage: s.ProfileImage})
		created := err == nil
		if goerrors.Is(err, errors.ErrUserAlreadyExists) {
			user, err = users.GetUserByUsername(ctx, s.Username)
		}
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", s.Username, err)
		}
		token, err := tokens.GenerateToken(user.ID)
		if err != nil {
			return nil, fmt.Errorf("token for %q: %w", s.Username, err)
		}
		results = append(results, seeded{user: user, created: created, token: token})
	}
	return results, nil
}

func render(w io.Writer, results []seeded) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Username", "Status", "Token"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, r := range results {
		status := "existing"
		if r.created {
			status = "created"
		}
		table.Append([]string{strconv.FormatInt(r.user.ID, 10), r.user.Username, status, r.token})
	}
	table.Render()
}
