package main

// General API documentation for swaggo. Regenerate docs/ with
// `swag init -g cmd/chatd/docs.go -d .,./internal/httpapi,./pkg/types`.
//
// @title           chatd API
// @version         1.0
// @description     HTTP API for a single-model instruction chat bot.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
