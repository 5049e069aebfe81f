package main

import (
	"encoding/json"
	"log/slog"

	"github.com/vango-go/hashstate/internal/config"
	"github.com/vango-go/hashstate/internal/errors"
	"github.com/vango-go/hashstate/pkg/hashstate"
)

// binding is the untyped view of a *hashstate.Binding the server needs.
type binding interface {
	Key() string
	Close()
}

// bindEnv carries what every configured binding shares within one tab.
type bindEnv struct {
	frag    hashstate.FragmentStore
	mirror  hashstate.MirrorStore
	metrics *hashstate.Metrics
	logger  *slog.Logger
}

// bindAll creates one binding per configured key.
func bindAll(cfgs []config.BindingConfig, env bindEnv) ([]binding, error) {
	out := make([]binding, 0, len(cfgs))
	for _, bc := range cfgs {
		b, err := bindFromConfig(bc, env)
		if err != nil {
			for _, prev := range out {
				prev.Close()
			}
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func bindFromConfig(bc config.BindingConfig, env bindEnv) (binding, error) {
	switch bc.Codec {
	case "", config.CodecString:
		initial := hashstate.None[string]()
		if bc.Default != "" {
			initial = hashstate.Some(bc.Default)
		}
		return bind(bc, env, hashstate.Codec[string](hashstate.StringCodec{}), initial)
	case config.CodecJSON, config.CodecBase64JSON:
		initial, err := jsonDefault(bc)
		if err != nil {
			return nil, err
		}
		var codec hashstate.Codec[any] = hashstate.JSONCodec[any]{}
		if bc.Codec == config.CodecBase64JSON {
			codec = hashstate.Base64JSONCodec[any]{}
		}
		return bind(bc, env, codec, initial)
	}
	return nil, errors.New("H301").WithDetail("binding " + bc.Key + " uses codec " + bc.Codec)
}

func jsonDefault(bc config.BindingConfig) (hashstate.Optional[any], error) {
	if bc.Default == "" {
		return hashstate.None[any](), nil
	}
	var v any
	if err := json.Unmarshal([]byte(bc.Default), &v); err != nil {
		return hashstate.None[any](), errors.New("H302").Wrap(err).
			WithDetail("default for " + bc.Key + " is not valid JSON")
	}
	return hashstate.Some(v), nil
}

func bind[T any](bc config.BindingConfig, env bindEnv, codec hashstate.Codec[T], initial hashstate.Optional[T]) (binding, error) {
	debounce, err := bc.DebounceDuration()
	if err != nil {
		return nil, err
	}
	logger := env.logger

	b := hashstate.Bind(bc.Key, env.frag, hashstate.Options[T]{
		Initial:    initial,
		Codec:      codec,
		Debounce:   debounce,
		Mirror:     env.mirror,
		SyncMirror: bc.Mirror && env.mirror != nil,
		Metrics:    env.metrics,
		Logger:     logger,
		OnChange: func(next, prev hashstate.Optional[T]) {
			logger.Info("value changed", "key", bc.Key, "value", next.String(), "previous", prev.String())
		},
	})
	logger.Debug("bound", "key", bc.Key, "value", b.Value().String())
	return b, nil
}
