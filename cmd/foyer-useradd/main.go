package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/foyer/pkg/realm"
)

var log = logrus.New()

func main() {
	driver := flag.String("driver", getEnv("FOYER_DB_DRIVER", "sqlite3"), "Database driver (sqlite3 or postgres)")
	dbPath := flag.String("db", getEnv("FOYER_DATABASE_URL", "/var/lib/foyer/users.db"), "Database path or connection URL")
	flag.Usage = usage
	flag.Parse()

	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()

	db, err := sql.Open(*driver, *dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("Failed to reach database")
	}

	users := realm.NewDBRealm(db)
	tokens := realm.NewTokenStore(db)
	if err := users.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("Failed to ensure user schema")
	}
	if err := tokens.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("Failed to ensure token schema")
	}

	var cmdErr error
	switch args[0] {
	case "add":
		cmdErr = runAdd(ctx, users, args[1:])
	case "passwd":
		cmdErr = runPasswd(ctx, users, args[1:])
	case "remove":
		cmdErr = runRemove(ctx, users, args[1:])
	case "list":
		cmdErr = runList(ctx, users)
	case "token":
		cmdErr = runToken(ctx, tokens, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		log.WithError(cmdErr).Fatal("Command failed")
	}
}

func runAdd(ctx context.Context, users *realm.DBRealm, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	user := fs.String("user", "", "Username to create")
	roles := fs.String("roles", "", "Comma-separated roles")
	password := fs.String("password", "", "Password (prompted when empty)")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	pw, err := resolvePassword(*password)
	if err != nil {
		return err
	}

	if err := users.AddUser(ctx, *user, pw, splitRoles(*roles)...); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"user": *user, "roles": *roles}).Info("User created")
	return nil
}

func runPasswd(ctx context.Context, users *realm.DBRealm, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	user := fs.String("user", "", "Username to update")
	password := fs.String("password", "", "Password (prompted when empty)")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	pw, err := resolvePassword(*password)
	if err != nil {
		return err
	}

	if err := users.SetPassword(ctx, *user, pw); err != nil {
		return err
	}
	log.WithField("user", *user).Info("Password updated")
	return nil
}

func runRemove(ctx context.Context, users *realm.DBRealm, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	user := fs.String("user", "", "Username to delete")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	if err := users.RemoveUser(ctx, *user); err != nil {
		return err
	}
	log.WithField("user", *user).Info("User removed")
	return nil
}

func runList(ctx context.Context, users *realm.DBRealm) error {
	usernames, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, username := range usernames {
		fmt.Println(username)
	}
	return nil
}

func runToken(ctx context.Context, tokens *realm.TokenStore, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("token requires a subcommand: issue, revoke, or list")
	}

	switch args[0] {
	case "issue":
		fs := flag.NewFlagSet("token issue", flag.ExitOnError)
		user := fs.String("user", "", "Username the token authenticates as")
		label := fs.String("label", "", "Free-form label, e.g. the consuming system")
		ttl := fs.Duration("ttl", 0, "Token lifetime (0 never expires)")
		fs.Parse(args[1:])

		if *user == "" {
			return fmt.Errorf("-user is required")
		}
		token, err := tokens.Issue(ctx, *user, *label, *ttl)
		if err != nil {
			return err
		}
		log.WithField("user", *user).Info("Token issued; the value below is shown only once")
		fmt.Println(token)
		return nil

	case "revoke":
		fs := flag.NewFlagSet("token revoke", flag.ExitOnError)
		user := fs.String("user", "", "Username the token belongs to")
		display := fs.String("token", "", "Token display prefix, e.g. foyer_ab12cd34")
		fs.Parse(args[1:])

		if *user == "" || *display == "" {
			return fmt.Errorf("-user and -token are required")
		}
		if err := tokens.Revoke(ctx, *user, *display); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"user": *user, "token": *display}).Info("Token revoked")
		return nil

	case "list":
		fs := flag.NewFlagSet("token list", flag.ExitOnError)
		user := fs.String("user", "", "Username whose tokens to list")
		fs.Parse(args[1:])

		if *user == "" {
			return fmt.Errorf("-user is required")
		}
		infos, err := tokens.List(ctx, *user)
		if err != nil {
			return err
		}
		for _, info := range infos {
			expiry := "never"
			if info.ExpiresAt != nil {
				expiry = info.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Printf("%s\t%s\tissued %s\texpires %s\n",
				info.Display, info.Label, info.CreatedAt.Format(time.RFC3339), expiry)
		}
		return nil

	default:
		return fmt.Errorf("unknown token subcommand: %s", args[0])
	}
}

// resolvePassword returns the flag value or reads one line from stdin.
func resolvePassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimSpace(line)
	if pw == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return pw, nil
}

func splitRoles(s string) []string {
	if s == "" {
		return nil
	}
	var roles []string
	for _, role := range strings.Split(s, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: foyer-useradd [flags] <command>

Commands:
  add     -user NAME [-roles a,b] [-password PW]   Create a user
  passwd  -user NAME [-password PW]                Change a password
  remove  -user NAME                               Delete a user and their roles
  list                                             List usernames
  token issue  -user NAME [-label L] [-ttl 720h]   Mint a bearer token
  token revoke -user NAME -token foyer_XXXXXXXX    Revoke a token
  token list   -user NAME                          List a user's tokens

Flags:
`)
	flag.PrintDefaults()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
