package main

import (
	"context"

	"github.com/go-go-golems/ai-threads/pkg/credentials"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine/factory"
	"github.com/go-go-golems/ai-threads/pkg/inference/session"
	"github.com/go-go-golems/ai-threads/pkg/settings"
	"github.com/go-go-golems/ai-threads/pkg/store"
	"github.com/go-go-golems/ai-threads/pkg/store/kv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// app wires the store, its database and the conversation engine together.
type app struct {
	settings *settings.Settings
	db       *kv.SQLiteKV
	store    *store.Store
	engine   *session.Engine
}

func newApp(ctx context.Context, options ...session.Option) (*app, error) {
	s, err := settings.NewFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	db, err := kv.OpenFile(s.DB)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", s.DB)
	}

	st := store.New(
		store.WithKV(db, s.StoreKey),
		store.WithNamingTimeout(s.NamingTimeout),
	)
	if err := st.Hydrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	secrets := credentials.NewSecretsManagerLookup(s.Region, s.SecretID)
	f := factory.NewStandardAdapterFactory(s.Region, secrets, factory.WithOpenAIBaseURL(s.OpenAIBaseURL))

	options = append([]session.Option{
		session.WithRequestTimeout(s.RequestTimeout),
		session.WithNamingModel(s.NamingModel),
	}, options...)
	e := session.NewEngine(st, credentials.NewAWSProvider(s.Region), f, options...)

	log.Debug().Str("db", s.DB).Str("region", s.Region).Msg("Application ready")

	return &app{
		settings: s,
		db:       db,
		store:    st,
		engine:   e,
	}, nil
}

// Close waits for pending naming requests and closes the database.
func (a *app) Close() error {
	a.store.Wait()
	return a.db.Close()
}
