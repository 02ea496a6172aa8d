package main

// General API documentation for swaggo. Regenerate docs/ with
// `swag init -g cmd/sdserver/docs.go -d ./,./internal/httpapi`.
//
// @title           sdserver API
// @version         1.0
// @description     Text-to-image generation over a shared GPU.
//
// @BasePath  /
//
// @schemes http
//
// @securityDefinitions.apikey  SharedSecret
// @in                          header
// @name                        Authorization
