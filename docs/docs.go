// Package docs holds the OpenAPI description served under /swagger/ when
// built with -tags=swagger. Regenerate with `swag init -g cmd/chatd/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/generate": {
            "post": {
                "description": "Runs one stateless exchange. The prompt holds only this instruction.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate a reply",
                "parameters": [
                    {
                        "description": "Instruction",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.GenerateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.GenerateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/sessions": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Start a session",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.SessionResponse"}}
                }
            }
        },
        "/api/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Get a session and its history",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SessionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["sessions"],
                "summary": "End a session",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/sessions/{id}/messages": {
            "post": {
                "description": "Runs one exchange in the session. History grows by two messages on success and is unchanged on failure.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Send a message",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Instruction",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.GenerateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Adapter status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "properties": {
                "instruction": {"type": "string", "example": "What is 2+2?"}
            }
        },
        "types.GenerateResponse": {
            "type": "object",
            "properties": {
                "response": {"type": "string", "example": "2+2 equals 4."}
            }
        },
        "types.Message": {
            "type": "object",
            "properties": {
                "created_unix": {"type": "integer", "example": 1700000000},
                "origin": {"type": "string", "example": "ai"},
                "text": {"type": "string", "example": "Hello there"}
            }
        },
        "types.MessageResponse": {
            "type": "object",
            "properties": {
                "history": {"type": "array", "items": {"$ref": "#/definitions/types.Message"}},
                "reply": {"$ref": "#/definitions/types.Message"}
            }
        },
        "types.SessionResponse": {
            "type": "object",
            "properties": {
                "created_unix": {"type": "integer", "example": 1700000000},
                "history": {"type": "array", "items": {"$ref": "#/definitions/types.Message"}},
                "id": {"type": "string", "example": "5f0c2f7e-3c1a-4a8e-9d8b-0a6f2d1e4b3c"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "context_size": {"type": "integer", "example": 8192},
                "inflight": {"type": "integer", "example": 1},
                "last_error": {"type": "string"},
                "max_queue_depth": {"type": "integer", "example": 32},
                "queue_len": {"type": "integer", "example": 0},
                "runtime": {"type": "string", "example": "llama:/models/phogpt-4b-chat.Q4_K_M.gguf"},
                "server_time_unix": {"type": "integer", "example": 1700000000},
                "sessions": {"type": "integer", "example": 3},
                "state": {"type": "string", "example": "ready"},
                "uptime_seconds": {"type": "integer", "example": 3600}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "chatd API",
	Description:      "HTTP API for a single-model instruction chat bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
