// Package docs holds the OpenAPI document served under /swagger when built
// with -tags=swagger. Regenerate with `swag init -g cmd/sdserver/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/sd/schedulers": {
            "get": {
                "description": "Selectable scheduler names with display name and description.",
                "produces": ["application/json"],
                "tags": ["sd"],
                "summary": "List schedulers",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {"$ref": "#/definitions/types.SchedulerInfo"}
                        }
                    }
                }
            }
        },
        "/sd/text2img": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sd"],
                "summary": "Generate images from a prompt",
                "parameters": [
                    {"type": "string", "description": "Shared secret", "name": "Authorization", "in": "header", "required": true},
                    {"description": "Generation request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.Text2ImgRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Text2ImgResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/sd/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sd"],
                "summary": "List checkpoints and adapters on disk",
                "parameters": [
                    {"type": "string", "description": "Shared secret", "name": "Authorization", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}
                }
            }
        },
        "/sd/unload": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sd"],
                "summary": "Unload a cached pipeline",
                "parameters": [
                    {"type": "string", "description": "Shared secret", "name": "Authorization", "in": "header", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "Bad Request"}}
        },
        "types.LoraSpec": {
            "type": "object",
            "properties": {
                "path": {"type": "string", "example": "~/loras/watercolor.safetensors"},
                "strength": {"type": "number", "example": 0.8}
            }
        },
        "types.ModelFile": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "name": {"type": "string"},
                "path": {"type": "string"},
                "size_bytes": {"type": "integer"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "checkpoints": {"type": "array", "items": {"$ref": "#/definitions/types.ModelFile"}},
                "loras": {"type": "array", "items": {"$ref": "#/definitions/types.ModelFile"}}
            }
        },
        "types.SchedulerInfo": {
            "type": "object",
            "properties": {
                "description": {"type": "string", "example": "Can yield more diverse outputs"},
                "name": {"type": "string", "example": "Euler Ancestral"}
            }
        },
        "types.Text2ImgRequest": {
            "type": "object",
            "properties": {
                "cfg_scale": {"type": "number", "example": 7.5},
                "height": {"type": "integer", "example": 1024},
                "iterations": {"type": "integer", "example": 1},
                "loras": {"type": "array", "items": {"$ref": "#/definitions/types.LoraSpec"}},
                "model": {"type": "string", "example": "~/models/sdxl_base.safetensors"},
                "negative_prompt": {"type": "string", "example": "blurry, low quality"},
                "positive_prompt": {"type": "string", "example": "a lighthouse at dusk, oil painting"},
                "scheduler": {"type": "string", "example": "euler_ancestral"},
                "seed": {"type": "integer", "example": 42},
                "steps": {"type": "integer", "example": 20},
                "width": {"type": "integer", "example": 1024}
            }
        },
        "types.Text2ImgResponse": {
            "type": "object",
            "properties": {"images": {"type": "array", "items": {"type": "string"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "sdserver API",
	Description:      "Text-to-image generation over a shared GPU.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
