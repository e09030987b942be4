package webui

import "embed"

// staticFS embeds the browser UI served at /
//
//go:embed static/*
var staticFS embed.FS
