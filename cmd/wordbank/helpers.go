package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dhlim/wordbank/internal/config"
	"github.com/dhlim/wordbank/internal/remote"
	"github.com/dhlim/wordbank/internal/session"
	"github.com/dhlim/wordbank/internal/token"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.Load() > %w", err)
	}
	return cfg, nil
}

// resolveEntry merges the launch sources: an entry URL wins over the
// individual flags, and WORDBANK_TOKEN is the fallback for the token.
func resolveEntry() (session.EntryParams, error) {
	params := session.EntryParams{Token: rawToken, Contents: contents}
	if entryURL != "" {
		parsed, err := session.ParseEntryURL(entryURL)
		if err != nil {
			return session.EntryParams{}, fmt.Errorf("session.ParseEntryURL() > %w", err)
		}
		if len(parsed.StrippedKeys) > 0 {
			slog.Debug("launch URL carried sensitive parameters", "count", len(parsed.StrippedKeys))
		}
		params = parsed
	}
	if params.Token == "" {
		params.Token = os.Getenv("WORDBANK_TOKEN")
	}
	if params.Token == "" {
		return session.EntryParams{}, fmt.Errorf("a token is required: pass --token, --entry-url or set WORDBANK_TOKEN")
	}
	return params, nil
}

// newRemoteClient builds the Airtable client. Credentials from the launch URL
// override the configuration file; legacy launches may place the words and
// users tables in different bases, which routes each table to its own client.
func newRemoteClient(cfg *config.Config, override session.AirtableParams) (remote.Client, string, string) {
	at := cfg.Remote.Airtable
	if override.APIKey != "" {
		at.APIKey = override.APIKey
	}
	if override.WordsTable != "" {
		at.WordsTable = override.WordsTable
	}
	if override.UsersTable != "" {
		at.UsersTable = override.UsersTable
	}

	if cfg.Remote.Mode == config.RemoteModeProxy {
		return remote.NewProxyClient(cfg.Remote.ProxyURL, at.BaseID), at.WordsTable, at.UsersTable
	}

	wordsBase := at.BaseID
	if override.WordsBaseID != "" {
		wordsBase = override.WordsBaseID
	}
	usersBase := wordsBase
	if override.UsersBaseID != "" {
		usersBase = override.UsersBaseID
	}

	wordsClient := remote.NewDirectClient(at.BaseURL, wordsBase, at.APIKey)
	if usersBase == wordsBase {
		return wordsClient, at.WordsTable, at.UsersTable
	}
	router := remote.NewRouter(wordsClient)
	router.Route(at.UsersTable, remote.NewDirectClient(at.BaseURL, usersBase, at.APIKey))
	return router, at.WordsTable, at.UsersTable
}

// startSession validates the token and opens the local database for the
// selected content. The caller owns the returned session.
func startSession(ctx context.Context, cfg *config.Config) (*session.Session, session.EntryParams, error) {
	params, err := resolveEntry()
	if err != nil {
		return nil, session.EntryParams{}, err
	}

	client, wordsTable, usersTable := newRemoteClient(cfg, params.Airtable)
	s, err := session.New(session.Options{
		DataDir:    cfg.DataDir,
		Remote:     client,
		WordsTable: wordsTable,
		UsersTable: usersTable,
	})
	if err != nil {
		return nil, session.EntryParams{}, fmt.Errorf("session.New() > %w", err)
	}

	if err := s.Start(ctx, params.Token, params.Contents); err != nil {
		_ = s.Close(context.Background())
		if kind, blocked := token.IsBlocked(err); blocked {
			return nil, session.EntryParams{}, fmt.Errorf("access blocked (%s): renew the pass and relaunch", kind)
		}
		return nil, session.EntryParams{}, fmt.Errorf("session.Start() > %w", err)
	}
	return s, params, nil
}
